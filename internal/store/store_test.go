package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/isa"
	"github.com/roach88/dpusim/internal/trace"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(t *testing.T, runID string, seq int64, index int, kind isa.Kind) trace.Record {
	t.Helper()
	r, err := trace.FromStep(engine.Step{
		RunID: runID,
		Seq:   seq,
		Index: index,
		Kind:  kind,
		Text:  kind.String(),
	})
	if err != nil {
		t.Fatalf("FromStep() failed: %v", err)
	}
	return r
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "steps", "dumps"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct{ name, want string }{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_MigratesV0Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_steps_run_seq'",
	).Scan(&name)
	if err != nil {
		t.Errorf("migration index missing: %v", err)
	}
}

func TestMigrations_Sequential(t *testing.T) {
	for i, m := range migrations {
		if m.version != i+1 {
			t.Errorf("migrations[%d].version = %d, want %d", i, m.version, i+1)
		}
		if m.name == "" || m.stmt == "" {
			t.Errorf("migrations[%d] is missing its name or statement", i)
		}
	}
	if got := schemaVersion(); got != len(migrations) {
		t.Errorf("schemaVersion() = %d, want %d", got, len(migrations))
	}
}

func TestStore_WriteReadRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := Run{
		ID:        "run-1",
		Version:   "V3E",
		Stream:    "END\n",
		Executed:  1,
		Digest:    "abc",
		ErrorCode: "",
		Seq:       7,
	}
	if err := s.WriteRun(ctx, want); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	// second write is ignored
	dup := want
	dup.Executed = 99
	if err := s.WriteRun(ctx, dup); err != nil {
		t.Fatalf("duplicate WriteRun() failed: %v", err)
	}

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got != want {
		t.Errorf("ReadRun() = %+v, want %+v", got, want)
	}

	if _, err := s.ReadRun(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun(missing) error = %v, want sql.ErrNoRows", err)
	}
}

func TestStore_ListRunsOrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Fatalf("ListRuns() on empty store = %v, want empty slice", runs)
	}

	for _, r := range []Run{
		{ID: "b", Version: "V2", Seq: 5},
		{ID: "c", Version: "V2", Seq: 2},
		{ID: "a", Version: "V2", Seq: 5},
	} {
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	runs, err = s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if want := []string{"c", "a", "b"}; !slices.Equal(ids, want) {
		t.Errorf("ListRuns() order = %v, want %v", ids, want)
	}
}

func TestStore_StepsOrderedAndIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	second := testRecord(t, "run-1", 2, 1, isa.End)
	first := testRecord(t, "run-1", 1, 0, isa.Load)
	other := testRecord(t, "run-2", 3, 0, isa.End)
	for _, r := range []trace.Record{second, first, other, first} {
		if err := s.WriteStep(ctx, r); err != nil {
			t.Fatalf("WriteStep() failed: %v", err)
		}
	}

	got, err := s.ReadSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadSteps() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadSteps() returned %d steps, want 2", len(got))
	}
	if got[0] != first || got[1] != second {
		t.Errorf("ReadSteps() = %+v", got)
	}
}

func TestStore_DumpRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap := engine.Snapshot{
		RunID: "run-1",
		Index: 3,
		Step:  4,
		Kind:  isa.DumpDDR,
		Segments: []engine.Segment{
			{Space: "ddr", ID: 1, Addr: 0x10, Data: []int8{-128, -1, 0, 127}},
			{Space: "bank", ID: 0, Data: []int8{5}},
		},
	}
	if err := s.Dump(ctx, snap); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	dumps, err := s.ReadDumps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadDumps() failed: %v", err)
	}
	if len(dumps) != 2 {
		t.Fatalf("ReadDumps() returned %d dumps, want 2", len(dumps))
	}
	if dumps[0].Name != "bank0" || dumps[1].Name != "ddr1@0x10" {
		t.Errorf("dump names = %q, %q", dumps[0].Name, dumps[1].Name)
	}
	if !slices.Equal(dumps[1].Data, []int8{-128, -1, 0, 127}) {
		t.Errorf("dump data = %v", dumps[1].Data)
	}
	if dumps[1].Digest != trace.RegionDigest(dumps[1].Data) {
		t.Error("stored digest does not match data")
	}
	if dumps[1].Kind != "DUMPDDR" || dumps[1].Seq != 4 || dumps[1].Index != 3 {
		t.Errorf("dump header = %+v", dumps[1])
	}
}

func TestStore_RecordsEngineRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cfg := config.Default()
	cfg.Threads = 1
	cfg.Banks = 2
	cfg.BankDepth = 64
	cfg.DDR = []config.DDRRegion{{RegID: 0, Size: 64}}

	src := `
LOAD bank_id=1 reg_id=0 ddr_addr=0 length=4
SAVE bank_id=1 reg_id=0 ddr_addr=8 length=4
DUMPDDR reg_id=0 ddr_addr=8 size=4
END
`
	st, err := isa.ParseText(isa.V3E, strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseText() failed: %v", err)
	}

	e := engine.New(&cfg,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDs(engine.NewFixedGenerator("run-1")),
		engine.WithRecorder(s),
		engine.WithDumper(s),
	)
	if err := e.Memory().WriteDDR(0, 0, []int8{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	res, err := e.Run(ctx, st)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	steps, err := s.ReadSteps(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 4 {
		t.Fatalf("stored %d steps, want 4", len(steps))
	}
	if steps[0].Kind != "LOAD" || steps[3].Kind != "END" {
		t.Errorf("step kinds = %s..%s", steps[0].Kind, steps[3].Kind)
	}

	dumps, err := s.ReadDumps(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(dumps) != 1 || !slices.Equal(dumps[0].Data, []int8{1, 2, 3, 4}) {
		t.Errorf("dumps = %+v", dumps)
	}
	if dumps[0].Seq != steps[2].Seq {
		t.Errorf("dump seq %d, DUMPDDR step seq %d", dumps[0].Seq, steps[2].Seq)
	}
}
