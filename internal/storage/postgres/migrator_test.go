package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationFiles(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestParseMigrations(t *testing.T) {
	t.Parallel()

	set, err := parseMigrations(migrationFiles(map[string]string{
		"0002_orders.up.sql":    "CREATE TABLE orders (id TEXT);",
		"0002_orders.down.sql":  "DROP TABLE orders;",
		"0001_catalog.up.sql":   "CREATE TABLE products (id TEXT);",
		"0001_catalog.down.sql": "DROP TABLE products;",
	}))
	require.NoError(t, err)
	require.Len(t, set, 2)

	assert.Equal(t, "0001_catalog", set[0].ID())
	assert.Equal(t, "0002_orders", set[1].ID())
	assert.Equal(t, "DROP TABLE orders;", set[1].DownSQL)
}

func TestParseMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]map[string]string{
		"missing down": {"0001_catalog.up.sql": "SELECT 1;"},
		"bad name":     {"catalog.sql": "SELECT 1;"},
		"empty body": {
			"0001_catalog.up.sql":   "  \n",
			"0001_catalog.down.sql": "SELECT 1;",
		},
		"name mismatch": {
			"0001_catalog.up.sql":  "SELECT 1;",
			"0001_orders.down.sql": "SELECT 1;",
		},
		"no files": {},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseMigrations(migrationFiles(files))
			assert.Error(t, err)
		})
	}
}

func TestParseMigrations_Embedded(t *testing.T) {
	t.Parallel()

	set, err := parseMigrations(migrationsFS)
	require.NoError(t, err)
	require.Len(t, set, 4)
	for i, m := range set {
		assert.Equal(t, int64(i+1), m.Version, "versions must be contiguous")
	}
	assert.Contains(t, set[0].UpSQL, "users_username_live_idx")
	assert.Contains(t, set[2].UpSQL, "outbox_messages_sent_idx")
	assert.Contains(t, set[3].UpSQL, "cart_items")
}

func testSet() migrationSet {
	return migrationSet{
		{Version: 1, Name: "catalog", UpSQL: "a", DownSQL: "a-"},
		{Version: 2, Name: "orders", UpSQL: "b", DownSQL: "b-"},
		{Version: 3, Name: "timeline_outbox", UpSQL: "c", DownSQL: "c-"},
	}
}

func TestMigrationSet_PendingAndDrifted(t *testing.T) {
	t.Parallel()

	set := testSet()
	applied := map[int64]string{
		1: set[0].Checksum(),
		2: "edited-after-apply",
	}

	assert.Equal(t, []string{"0003_timeline_outbox"}, set.pending(applied))
	assert.Equal(t, []string{"0002_orders"}, set.drifted(applied))

	applied[2] = ""
	assert.Empty(t, set.drifted(applied), "legacy rows without checksum are trusted")

	_, ok := set.find(2)
	assert.True(t, ok)
	_, ok = set.find(7)
	assert.False(t, ok)
}

func TestPlanSteps(t *testing.T) {
	t.Parallel()

	set := testSet()
	ids := func(plan []migration) []string {
		out := make([]string, 0, len(plan))
		for _, m := range plan {
			out = append(out, m.ID())
		}
		return out
	}

	plan, err := planSteps(set, map[int64]string{1: ""}, migrationUp, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_orders", "0003_timeline_outbox"}, ids(plan))

	plan, err = planSteps(set, map[int64]string{}, migrationUp, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_catalog"}, ids(plan))

	plan, err = planSteps(set, map[int64]string{1: "", 2: "", 3: ""}, migrationDown, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"0003_timeline_outbox", "0002_orders"}, ids(plan))

	plan, err = planSteps(set, map[int64]string{}, migrationDown, 1)
	require.NoError(t, err)
	assert.Empty(t, plan)

	_, err = planSteps(set, map[int64]string{9: ""}, migrationDown, 1)
	assert.ErrorContains(t, err, "unknown migration version 9")
}
