package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carnet-tools/internal/common"
)

func TestServices_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir())

	svc := NewService{
		BarcodeValue: "SVC001", UniqueID: "SVC001", ServiceName: "Comedor",
		CaptionPx: 40, Format: "Code128", ImageFilename: "Comedor_SVC001.png",
	}
	img := writeImage(t, s, svc.ImageFilename)

	ok, err := s.InsertService(ctx, svc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertService(ctx, svc)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := s.ServiceExists(ctx, "SVC001", "")
	require.NoError(t, err)
	assert.True(t, exists)

	// Services and employee records are separate namespaces.
	exists, err = s.Exists(ctx, "SVC001", "SVC001")
	require.NoError(t, err)
	assert.False(t, exists)

	list, err := s.Services(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Comedor", list[0].ServiceName)
	assert.Equal(t, 40, list[0].CaptionPx)

	deleted, err := s.DeleteService(ctx, list[0].ID, true)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, img)

	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestInsertService_Validation(t *testing.T) {
	s := openStore(t, t.TempDir())
	_, err := s.InsertService(context.Background(), NewService{
		BarcodeValue: "X", UniqueID: "X", ServiceName: "", CaptionPx: 50, Format: "Code128",
	})
	assert.ErrorIs(t, err, common.ErrFormat)
}
