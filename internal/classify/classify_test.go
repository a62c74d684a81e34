package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
)

func TestStatement(t *testing.T) {
	tests := []struct {
		query string
		want  policy.CommandKind
	}{
		{"SELECT * FROM t", policy.KindSelect},
		{"select 1", policy.KindSelect},
		{"  \n\tSeLeCt 1", policy.KindSelect},
		{"(SELECT 1) UNION (SELECT 2)", policy.KindSelect},
		{"DELETE FROM t WHERE id = 1", policy.KindDelete},
		{"TRUNCATE TABLE t", policy.KindTruncate},
		{"INSERT INTO t VALUES (1)", policy.KindInsert},
		{"REPLACE INTO t VALUES (1)", policy.KindInsert},
		{"UPDATE t SET a = 1", policy.KindUpdate},
		{"CREATE TABLE t (a INT)", policy.KindOther},
		{"WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x", policy.KindOther},
		{"-- cleanup\nDELETE FROM t", policy.KindDelete},
		{"# mysql style\nSELECT 1", policy.KindSelect},
		{"/* hint */ INSERT INTO t VALUES (1)", policy.KindInsert},
		{"/* a */ /* b */ -- c\n  update t set a = 2", policy.KindUpdate},
		{"/* unterminated", policy.KindOther},
		{"-- only a comment", policy.KindOther},
		{"SELECTED", policy.KindOther},
		{"DELETE_ME", policy.KindOther},
		{"", policy.KindOther},
		{"/*!40101 INSERT INTO t VALUES (1) */", policy.KindOther},

		{"SELECT 1;", policy.KindSelect},
		{"DELETE FROM t WHERE 0; INSERT INTO t VALUES (2)", policy.KindInsert},
		{"SELECT 1; update t set a = 1", policy.KindUpdate},
		{"TRUNCATE t; DELETE FROM u; SELECT 1", policy.KindTruncate},
		{"SELECT 1; /* note */ ; -- done", policy.KindSelect},
		{"SELECT ';INSERT INTO t VALUES (1)'", policy.KindSelect},
		{`SELECT "a;b", ` + "`c;d`" + ` FROM t`, policy.KindSelect},
		{"SELECT 'it''s; fine' FROM t", policy.KindSelect},
		{"SELECT 1 /* ; INSERT */", policy.KindSelect},
		{"SELECT 1 -- ; INSERT", policy.KindSelect},
		{"SELECT 'a\\'; INSERT INTO t VALUES (1)", policy.KindInsert},
		{"SELECT 1 --x; INSERT INTO t VALUES (1)", policy.KindInsert},
		{"SELECT 1 # '\n; INSERT INTO t VALUES (1)", policy.KindInsert},
		{"SELECT 1; /*! INSERT INTO t VALUES (1) */", policy.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Statement(tt.query))
		})
	}
}

func TestSplit(t *testing.T) {
	sqlite, mysql := dialects[0], dialects[1]

	assert.Equal(t, []string{"SELECT 1", " SELECT 2", ""}, split("SELECT 1; SELECT 2;", sqlite))
	assert.Equal(t, []string{"SELECT '[;]'"}, split("SELECT '[;]'", sqlite))
	assert.Equal(t, []string{"SELECT [a;b]"}, split("SELECT [a;b]", sqlite))
	assert.Len(t, split("SELECT [a;b]", mysql), 2)
	assert.Len(t, split("SELECT 1 # x; y", sqlite), 2)
	assert.Len(t, split("SELECT 1 # x; y", mysql), 1)
	assert.Len(t, split(`SELECT 'a\'; SELECT 2`, sqlite), 2)
	assert.Len(t, split(`SELECT 'a\'; SELECT 2`, mysql), 1)
	assert.Equal(t, []string{"SELECT 'open;"}, split("SELECT 'open;", sqlite))
}
