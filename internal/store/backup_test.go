package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carnet-tools/internal/common"
)

func countRows(t *testing.T, dbPath string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM codigos_barras`).Scan(&n))
	return n
}

func writeImage(t *testing.T, s *Store, name string) string {
	t.Helper()
	p := s.ImagePath(name)
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))
	return p
}

func TestBackup_Name(t *testing.T) {
	s := openStore(t, t.TempDir(), func(o *Options) {
		o.Now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local) }
	})
	p1, err := s.Backup(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, "backup_manual_20240506_070809.db", filepath.Base(p1))

	// Same second: a second file must not clobber the first.
	p2, err := s.Backup(context.Background(), "manual")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.FileExists(t, p1)
	assert.FileExists(t, p2)

	list, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDelete_BacksUpBeforeRemoving(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	rec := sampleRecord("ABCD12", "EMP0001")
	img := writeImage(t, s, rec.ImageFilename)
	ok, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := s.All(ctx)
	require.NoError(t, err)
	id := all[0].ID

	deleted, err := s.Delete(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, img)

	backups, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(backups[0].Path), "backup_antes_eliminar_id_"))
	assert.Equal(t, 1, countRows(t, backups[0].Path), "backup must hold the row")

	all, err = s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDelete_Missing(t *testing.T) {
	s := openStore(t, t.TempDir())
	deleted, err := s.Delete(context.Background(), 42, true)
	require.NoError(t, err)
	assert.False(t, deleted)

	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestWipe_BacksUpBeforeRemoving(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	var imgs []string
	for _, v := range []string{"AAA111", "BBB222"} {
		rec := sampleRecord(v, "EMP")
		imgs = append(imgs, writeImage(t, s, rec.ImageFilename))
		_, err := s.Insert(ctx, rec)
		require.NoError(t, err)
	}

	ok, err := s.Wipe(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)
	for _, p := range imgs {
		assert.NoFileExists(t, p)
	}

	backups, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "antes_limpiar_todo", backups[0].Reason)
	assert.Equal(t, 2, countRows(t, backups[0].Path))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}

func TestWipe_RefusesWithoutBackup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())
	_, err := s.Insert(ctx, sampleRecord("AAA111", "EMP"))
	require.NoError(t, err)

	// A regular file where the backups directory should be makes VACUUM INTO fail.
	require.NoError(t, os.RemoveAll(s.BackupsDir()))
	require.NoError(t, os.WriteFile(s.BackupsDir(), []byte("x"), 0o644))

	ok, err := s.Wipe(ctx, true)
	assert.False(t, ok)
	require.ErrorIs(t, err, common.ErrStorage)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}

func TestPruneBackups_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	for i := 0; i < 13; i++ {
		_, err := s.Backup(context.Background(), "manual")
		require.NoError(t, err)
	}
	list, err := s.ListBackups()
	require.NoError(t, err)
	require.Len(t, list, 13)
	newest := list[0].Path
	require.NoError(t, s.Close())

	// Pruning runs on Open.
	again := openStore(t, dir)
	list, err = again.ListBackups()
	require.NoError(t, err)
	assert.Len(t, list, DefaultRetention)
	assert.Equal(t, newest, list[0].Path)
}

func TestReclaimOrphans_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	rec := sampleRecord("AAA111", "EMP")
	kept := writeImage(t, s, rec.ImageFilename)
	_, err := s.Insert(ctx, rec)
	require.NoError(t, err)

	svcImg := writeImage(t, s, "servicio_SVC001.png")
	_, err = s.InsertService(ctx, NewService{
		BarcodeValue: "SVC001", UniqueID: "SVC001", ServiceName: "Comedor",
		CaptionPx: 50, Format: "Code128", ImageFilename: "servicio_SVC001.png",
	})
	require.NoError(t, err)

	orphan := writeImage(t, s, "nobody_ZZZ999.png")
	notPNG := filepath.Join(s.ImagesDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notPNG, []byte("x"), 0o644))

	n, errs := s.ReclaimOrphans(ctx)
	assert.Empty(t, errs)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, kept)
	assert.FileExists(t, svcImg)
	assert.FileExists(t, notPNG)

	n, errs = s.ReclaimOrphans(ctx)
	assert.Empty(t, errs)
	assert.Zero(t, n)
}
