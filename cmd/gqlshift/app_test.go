// # cmd/gqlshift/app_test.go
package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlshift/internal/config"
)

const appSchema = `
type Query {
  venture: Venture
}

type Venture {
  id: ID!
}
`

func newTestApp(t *testing.T, source string) *App {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src", "queries.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(srcPath), 0o755))
	require.NoError(t, os.WriteFile(srcPath, []byte(source), 0o644))

	schemaPath := filepath.Join(dir, "schema.graphql")
	require.NoError(t, os.WriteFile(schemaPath, []byte(appSchema), 0o644))

	cfg := config.Default()
	cfg.ScanPaths = []string{filepath.Join(dir, "src")}
	cfg.Schema.Path = schemaPath

	app, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestApplyFailsOnRunErrors(t *testing.T) {
	// The spread resolves nowhere, so the run accumulates an error.
	src := "import { gql } from '@apollo/client';\n" +
		"export const Q = gql`query Q { venture { ...Nowhere } }`;\n"
	app := newTestApp(t, src)

	err := app.Apply(context.Background(), true, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "errors")

	// With -skip-invalid the same run exits clean.
	require.NoError(t, app.Apply(context.Background(), true, true))
}

func TestApplyCleanRunExitsZero(t *testing.T) {
	src := "import { gql } from '@apollo/client';\n" +
		"export const Q = gql`query Q { venture { id } }`;\n"
	app := newTestApp(t, src)

	require.NoError(t, app.Apply(context.Background(), true, false))
}
