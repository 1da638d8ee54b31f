package issue

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/minter"
	"github.com/ironsheep/carnet-tools/internal/store"
)

// scripted returns the draws in order and then zeros.
func scripted(draws ...int) *minter.Minter {
	return &minter.Minter{Intn: func(n int) (int, error) {
		if len(draws) == 0 {
			return 0, nil
		}
		v := draws[0]
		draws = draws[1:]
		return v % n, nil
	}}
}

func newIssuer(t *testing.T, m *minter.Minter) (*Issuer, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{DataDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := barcode.NewEngine(st.ImagesDir(), zerolog.Nop())
	engine.FontPaths = nil
	return New(st, engine, m, zerolog.Nop()), st
}

func TestIssue_Scenario(t *testing.T) {
	iss, st := newIssuer(t, scripted(10, 11, 12, 13, 1, 2))
	var states []common.State
	iss.OnState = func(s common.State) { states = append(states, s) }

	got, err := iss.Issue(context.Background(), Request{
		FirstNames:   "Juan",
		LastNames:    "Pérez",
		EmployeeCode: "E001",
		Format:       barcode.Code128,
	})
	require.NoError(t, err)

	assert.Equal(t, "ABCD12", got.Record.UniqueID)
	assert.Equal(t, "ABCD12", got.Record.BarcodeValue)
	assert.Equal(t, "Juan_Pérez_ABCD12.png", got.Record.ImageFilename)
	assert.Equal(t, "E001", got.Record.EmployeeCode)
	assert.FileExists(t, st.ImagePath(got.Record.ImageFilename))
	assert.Positive(t, got.Audit.Width)

	assert.Equal(t, []common.State{
		common.StateMint, common.StateEncode, common.StateVerifyEncode,
		common.StatePersist, common.StateAccepted,
	}, states)
}

func TestIssue_SkipsTakenID(t *testing.T) {
	iss, st := newIssuer(t, scripted(10, 11, 12, 13, 1, 2, 10, 11, 12, 13, 1, 3))
	ok, err := st.Insert(context.Background(), store.NewRecord{
		BarcodeValue: "ABCD12", UniqueID: "ABCD12", Format: "Code128",
		FirstNames: "Ana", EmployeeCode: "E000",
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := iss.Issue(context.Background(), Request{FirstNames: "Juan", LastNames: "Pérez", EmployeeCode: "E001"})
	require.NoError(t, err)
	assert.Equal(t, "ABCD13", got.Record.UniqueID)
	assert.Equal(t, barcode.Code128, got.Record.Format)
}

func TestIssue_EANCheckDigit(t *testing.T) {
	iss, _ := newIssuer(t, scripted(1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 1, 2))

	got, err := iss.Issue(context.Background(), Request{
		FirstNames:   "Juan",
		EmployeeCode: "E002",
		Format:       barcode.EAN13,
		Mint:         minter.Options{IncludeName: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234567890128", got.Record.UniqueID)
}

func TestIssue_NameAndCustomText(t *testing.T) {
	iss, _ := newIssuer(t, nil)

	got, err := iss.Issue(context.Background(), Request{
		FirstNames:   "Juan",
		LastNames:    "Pérez",
		EmployeeCode: "E003",
		Mint:         minter.Options{IncludeName: true, CustomText: "0042"},
	})
	require.NoError(t, err)
	assert.Equal(t, "JUA0042", got.Record.UniqueID)

	_, err = iss.Issue(context.Background(), Request{
		FirstNames:   "Juan",
		LastNames:    "Pérez",
		EmployeeCode: "E004",
		Mint:         minter.Options{IncludeName: true, CustomText: "0042"},
	})
	assert.ErrorIs(t, err, common.ErrIDSpaceExhausted)
}

func TestIssue_RequiresEmployeeCode(t *testing.T) {
	iss, st := newIssuer(t, nil)
	_, err := iss.Issue(context.Background(), Request{FirstNames: "Juan", EmployeeCode: "  "})
	assert.ErrorIs(t, err, common.ErrFormat)

	entries, err := os.ReadDir(st.ImagesDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIssue_Cancelled(t *testing.T) {
	iss, _ := newIssuer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := iss.Issue(ctx, Request{FirstNames: "Juan", EmployeeCode: "E005"})
	assert.ErrorIs(t, err, common.ErrCancelled)
}

func TestIssueService(t *testing.T) {
	iss, st := newIssuer(t, scripted(10, 11, 12, 13, 1, 2))

	svc, err := iss.IssueService(context.Background(), ServiceRequest{Name: "Comedor", CaptionPx: 40})
	require.NoError(t, err)
	assert.Equal(t, "ABCD12", svc.UniqueID)
	assert.Equal(t, "Comedor", svc.ServiceName)
	assert.Equal(t, 40, svc.CaptionPx)
	assert.FileExists(t, st.ImagePath(svc.ImageFilename))

	// The same id is free in the employee namespace.
	exists, err := st.Exists(context.Background(), "ABCD12", "ABCD12")
	require.NoError(t, err)
	assert.False(t, exists)
}
