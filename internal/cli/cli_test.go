package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/cortex/internal/config"
	"github.com/cortexlab/cortex/internal/engine/enginetest"
	"github.com/cortexlab/cortex/internal/logger"
	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/runtime"
	"github.com/cortexlab/cortex/internal/session"
	"github.com/cortexlab/cortex/internal/validate"
)

type staticPacks []model.KnowledgePack

func (p staticPacks) Discover(context.Context, bool) ([]model.KnowledgePack, error) {
	return p, nil
}

func testApp(t *testing.T, eng *enginetest.Engine) *app {
	t.Helper()
	packs := staticPacks{{
		ID:          "science-6",
		Grade:       "6",
		Subject:     "science",
		Keywords:    []string{"photosynthesis"},
		FullContent: "# Science\n\n## Photosynthesis\nLeaves make food.",
	}}
	return &app{
		cfg: config.DefaultConfig(t.TempDir()),
		log: logger.Nop(),
		rt:  runtime.New(eng, packs, nil, runtime.DefaultConfig(), nil),
	}
}

func TestAnswer_PrintsValidatedResponse(t *testing.T) {
	a := testApp(t, enginetest.New("Leaves ", "make ", "food."))
	var out bytes.Buffer

	res := a.answer(context.Background(), &out, nil, "what is photosynthesis", &studentFlags{grade: "6"}, nil)

	assert.Equal(t, "Leaves make food.", res.Response)
	assert.Equal(t, "Leaves make food.\n", out.String())
}

func TestAnswer_RejectedAnswerIsNeverPrinted(t *testing.T) {
	a := testApp(t, enginetest.New("Some people use ", "drugs ", "to feel better."))
	var out bytes.Buffer

	res := a.answer(context.Background(), &out, nil, "what is photosynthesis", &studentFlags{grade: "6"}, nil)

	assert.True(t, res.Refused)
	assert.NotContains(t, out.String(), "drugs")
	assert.NotContains(t, out.String(), "Some people")
	assert.Equal(t, validate.HardRefusal+"\n", out.String())
}

func TestRm_WritesToCommandOutput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CORTEX_HOME", "")
	t.Setenv("CORTEX_DB", "")
	t.Setenv("CORTEX_PACKS_DIR", "")

	store, err := session.NewSQLiteStore(filepath.Join(dir, "cortex.db"))
	require.NoError(t, err)
	sess, err := store.Create(context.Background(), session.CreateParams{Grade: "6", Subject: "science"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	t.Cleanup(func() { RootCmd.SetOut(nil); RootCmd.SetArgs(nil) })
	RootCmd.SetArgs([]string{"rm", sess.ID, "--home", dir})
	require.NoError(t, RootCmd.Execute())

	assert.Contains(t, out.String(), `"deleted":"`+sess.ID+`"`)

	store, err = session.NewSQLiteStore(filepath.Join(dir, "cortex.db"))
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Get(context.Background(), sess.ID)
	assert.Error(t, err)
}

func TestPacksList_NamesPackRoot(t *testing.T) {
	dir := t.TempDir()
	packsDir := filepath.Join(dir, "my-packs")
	t.Setenv("CORTEX_HOME", "")
	t.Setenv("CORTEX_DB", "")
	t.Setenv("CORTEX_PACKS_DIR", packsDir)

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	t.Cleanup(func() { RootCmd.SetOut(nil); RootCmd.SetArgs(nil) })
	RootCmd.SetArgs([]string{"packs", "list", "--home", dir})
	require.NoError(t, RootCmd.Execute())

	assert.Equal(t, "no packs installed in "+packsDir+"\n", out.String())
}
