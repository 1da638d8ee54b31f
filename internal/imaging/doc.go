// Package imaging holds the raster helpers shared by the barcode engine, the
// template renderer and the carnet writer.
//
// It covers four concerns:
//
// # Loading and inspection
//
// Load decodes PNG, JPEG and GIF files. Inspect reports dimensions, a
// PIL-style mode string ("RGB", "RGBA", "L", "P") and file size, and
// CheckIntegrity rejects empty, undecodable or undersized files.
//
// # Sampling
//
// SpreadPoints picks well-separated sample positions inside a rectangle.
// IsBlank and SameAt compare only those samples, which keeps the renderer's
// stability and blank-frame loops cheap on 1200 DPI captures. Pixel equality
// is judged in CIE Lab space with a small tolerance.
//
// # Geometry
//
// Fit rescales with a Lanczos filter; Flatten composites onto opaque white and
// returns a plain RGB raster; Pad adds a white margin.
//
// # Encoding
//
// EncodePNG writes a PNG that carries a pHYs chunk, so print tools see the
// intended DPI.
//
// All coordinates are 0-based with the origin at the top-left corner.
package imaging
