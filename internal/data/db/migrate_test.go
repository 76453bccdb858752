package db_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	types "github.com/neoalexandria/backend/internal/domain"
)

// The schema must migrate on SQLite as well as Postgres, and timestamp
// defaults must be dialect-portable DDL.
func TestAutoMigrateOnSQLite(t *testing.T) {
	gdb := testutil.DB(t)

	// A raw insert leans on the column defaults instead of GORM's hooks.
	id := uuid.New()
	require.NoError(t, gdb.Exec(
		"INSERT INTO authority_subjects (id, canonical_form) VALUES (?, ?)",
		id, "Default Timestamps",
	).Error)

	var subj types.AuthoritySubject
	require.NoError(t, gdb.First(&subj, "id = ?", id).Error)
	assert.False(t, subj.CreatedAt.IsZero())
	assert.False(t, subj.UpdatedAt.IsZero())
	assert.Equal(t, 0, subj.UsageCount)
}
