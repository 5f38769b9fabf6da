package datastore

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/logger"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dir:    t.TempDir(),
		Logger: logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC),
	}
}

// openTestStore opens a migrated SQLite store closed at test cleanup.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeDefect(lot string, board, number int) entities.Defect {
	return entities.NewDefect(entities.DefectParams{
		LineName:          "LINE-1",
		ModelCode:         "Y8470722R",
		LotNumber:         lot,
		CurrentBoardIndex: board,
		DefectNumber:      number,
		Serial:            fmt.Sprintf("SN%04d", number),
		Reference:         fmt.Sprintf("R%d", number),
		DefectName:        "ブリッジ",
		X:                 0.25,
		Y:                 0.75,
		AOIUser:           "inspector",
		InsertedAt:        time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
		ModelLabel:        "CN-SNDDJ0CJ",
		BoardLabel:        "411CA",
	})
}
