package zedb

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	db := setup(t, Options{Metrics: m})
	seedUsers(t, db)

	u1 := must(db.Load(ctx, userType, "u1"))
	noerr(t, db.Save(ctx, u1))
	noerr(t, u1.Set("name", "Alicia"))
	noerr(t, db.Save(ctx, u1))
	must(db.Query(userType).Filter("name", "Bob").IDs(ctx))
	must(db.Delete(ctx, u1))

	deepEqual(t, testutil.ToFloat64(m.Saves.WithLabelValues("User", "saved")), 5.0)
	deepEqual(t, testutil.ToFloat64(m.Saves.WithLabelValues("User", "noop")), 1.0)
	deepEqual(t, testutil.ToFloat64(m.Deletes.WithLabelValues("User")), 1.0)
	// 4 seeded users with 4 entries each, 4 re-added on the rename, 1 removed
	deepEqual(t, testutil.ToFloat64(m.IndexEntriesAdded.WithLabelValues("User")), 20.0)
	deepEqual(t, testutil.ToFloat64(m.IndexEntriesRemoved.WithLabelValues("User")), 5.0)
	deepEqual(t, testutil.ToFloat64(m.IndexScans.WithLabelValues("User", "name")), 1.0)
	deepEqual(t, testutil.ToFloat64(m.Loads.WithLabelValues("User", "miss")), 4.0)
	deepEqual(t, testutil.CollectAndCount(m.QueryDuration), 1)

	n, err := testutil.GatherAndCount(reg, "zedb_saves_total")
	noerr(t, err)
	deepEqual(t, n, 2)
}

func TestNilMetricsAreIgnored(t *testing.T) {
	var m *Metrics
	m.saved(userType, false, indexStats{added: 1})
	m.deleted(userType, indexStats{})
	m.loaded(userType, true)
	m.scanned(userType, "name")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := setup(t, Options{})
	seedUsers(t, db)
	for range 2 {
		noerr(t, db.Save(ctx, ticketType.MustNew(Values{"title": "t"})))
	}

	st := must(db.Stats(ctx, userType))
	deepEqual(t, st.Records, 4)
	deepEqual(t, st.IndexEntries, 16)
	deepEqual(t, st.Indexes["index:User:name"], 4)
	deepEqual(t, len(st.Sequences), 0)

	st = must(db.Stats(ctx, ticketType))
	deepEqual(t, st.Records, 2)
	deepEqual(t, st.Sequences, map[string]int64{"id": 2})
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	db := setup(t, Options{})
	seedUsers(t, db)
	noerr(t, db.Save(ctx, ticketType.MustNew(Values{"title": "t"})))

	s := must(db.DumpString(ctx, DumpAll, userType, ticketType))
	for _, want := range []string{
		"User (4 records)\n",
		"User.stats: index_entries = 16\n",
		`User:u1 {"age":30,"email":"alice@example.com","id":"u1","name":"Alice"}` + "\n",
		"index:User:name (4 entries)\n",
		"  Alice -> u1\n  Alice -> u3\n  Bob -> u2\n  Carol -> u4\n",
		"Ticket (1 records)\n",
		"Ticket.stats: index_entries = 2, seq.id = 1\n",
		"index:Ticket:status (1 entries)\n  <nil> -> 1\n",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("** dump does not contain %q:\n%s", want, s)
		}
	}

	s = must(db.DumpString(ctx, DumpTypeHeaders|DumpIndexes, userType))
	if strings.Contains(s, "Alice -> u1") {
		t.Errorf("** index entries dumped without DumpIndexEntries:\n%s", s)
	}
	if strings.Contains(s, "User:u1 ") {
		t.Errorf("** records dumped without DumpRecords:\n%s", s)
	}
}
