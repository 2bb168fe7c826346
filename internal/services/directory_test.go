package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/attendance/internal/sentinel"
)

func TestDirectoryFindPersonByPhoneSpellings(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.person(t, "p-local", "Ana", "08112345678", "")
	env.person(t, "p-dashed", "Budi", "+62 812-1111-222", "")

	// stored local, typed international
	p, err := env.dir.FindPersonByPhone(ctx, "+628112345678")
	require.NoError(t, err)
	assert.Equal(t, "p-local", p.ID)

	// stored with separators, matched digit-for-digit
	p, err = env.dir.FindPersonByPhone(ctx, "6281211112 22")
	require.NoError(t, err)
	assert.Equal(t, "p-dashed", p.ID)

	_, err = env.dir.FindPersonByPhone(ctx, "0899999999")
	assert.ErrorIs(t, err, sentinel.ErrPersonNotFound)
}

func TestDirectoryFindPersonByEmailIgnoresCase(t *testing.T) {
	env := newEnv(t)
	env.person(t, "p-1", "Ana", "", "Ana@Example.org")

	p, err := env.dir.FindPersonByEmail(context.Background(), "ana@example.ORG")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)

	_, err = env.dir.FindPersonByEmail(context.Background(), "")
	assert.ErrorIs(t, err, sentinel.ErrPersonNotFound)
}

func TestDirectoryVisitorsAreChurchScoped(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.visitor(t, "v-1", "Citra", "0813000111", "citra@example.org")

	v, err := env.dir.FindVisitorByPhone(ctx, "church-1", "+62813000111")
	require.NoError(t, err)
	assert.Equal(t, "v-1", v.ID)

	v, err = env.dir.FindVisitorByEmail(ctx, "church-1", "CITRA@example.org")
	require.NoError(t, err)
	assert.Equal(t, "v-1", v.ID)

	_, err = env.dir.FindVisitorByPhone(ctx, "church-2", "0813000111")
	assert.ErrorIs(t, err, sentinel.ErrPersonNotFound)
}

func TestDirectoryFindPersonByID(t *testing.T) {
	env := newEnv(t)
	env.person(t, "AbCdEfGh12345678901234", "Ana", "", "")

	p, err := env.dir.FindPersonByID(context.Background(), "AbCdEfGh12345678901234")
	require.NoError(t, err)
	assert.Equal(t, "Ana Test", p.FullName())

	_, err = env.dir.FindPersonByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrPersonNotFound)
}
