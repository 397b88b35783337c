package mapreduce

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type word struct{ id, text string }

func (w word) EntityID() string { return w.id }

type sliceSource map[models.Kind][]models.Entity

func (s sliceSource) Scan(ctx context.Context, kind models.Kind, fn func(models.Entity) error) error {
	for _, e := range s[kind] {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

type wordCount struct {
	failOn string
}

func (wordCount) Name() string               { return "WordCount" }
func (wordCount) EntityKinds() []models.Kind { return []models.Kind{"words", "more_words"} }
func (wordCount) ShardCount() int            { return 3 }

func (w wordCount) Map(_ context.Context, item models.Entity, out Emitter) error {
	if item.EntityID() == w.failOn {
		return errors.New("boom")
	}
	for _, f := range strings.Fields(item.(word).text) {
		if err := out.Emit(f, 1); err != nil {
			return err
		}
	}
	return nil
}

func (wordCount) Reduce(_ context.Context, key string, values []json.RawMessage, out Emitter) error {
	counts, err := DecodeValues[int](values)
	if err != nil {
		return err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return out.Emit(key, total)
}

func testSource() sliceSource {
	return sliceSource{
		"words":      {word{"a", "x y"}, word{"b", "y z"}, word{"c", ""}},
		"more_words": {word{"d", "z z"}},
	}
}

func TestRunnerGroupsAndReducesEveryKey(t *testing.T) {
	r := NewRunner(testSource(), nil)
	res, err := r.Run(context.Background(), wordCount{}, 0)
	require.NoError(t, err)

	require.Len(t, res.Outputs, 3)
	assert.Equal(t, "x", res.Outputs[0].Key)
	assert.JSONEq(t, "1", string(res.Outputs[0].Value))
	assert.Equal(t, "y", res.Outputs[1].Key)
	assert.JSONEq(t, "2", string(res.Outputs[1].Value))
	assert.Equal(t, "z", res.Outputs[2].Key)
	assert.JSONEq(t, "3", string(res.Outputs[2].Value))

	assert.Equal(t, Counters{RecordsScanned: 4, Emissions: 6, Outputs: 3}, res.Counters)
}

func TestRunnerMapErrorFailsRun(t *testing.T) {
	r := NewRunner(testSource(), nil)
	_, err := r.Run(context.Background(), wordCount{failOn: "b"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map b")
}

type wordCountReportingFailures struct{ wordCount }

func (wordCountReportingFailures) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out Emitter) error {
	return out.Emit("unreadable:"+item.ID, 1)
}

func sourceWithUnreadable() sliceSource {
	src := testSource()
	src["words"] = append(src["words"], &models.UnreadableEntity{ID: "bad", Kind: "words", Err: errors.New("cannot decode")})
	return src
}

func TestRunnerUnreadableRecords(t *testing.T) {
	t.Run("skipped without a handler", func(t *testing.T) {
		r := NewRunner(sourceWithUnreadable(), nil)
		res, err := r.Run(context.Background(), wordCount{}, 2)
		require.NoError(t, err)

		keys := make([]string, 0, len(res.Outputs))
		for _, o := range res.Outputs {
			keys = append(keys, o.Key)
		}
		assert.Equal(t, []string{"x", "y", "z"}, keys)
		assert.Equal(t, 5, res.Counters.RecordsScanned)
	})

	t.Run("reported by a handler", func(t *testing.T) {
		r := NewRunner(sourceWithUnreadable(), nil)
		res, err := r.Run(context.Background(), wordCountReportingFailures{}, 2)
		require.NoError(t, err)

		require.Len(t, res.Outputs, 4)
		assert.Equal(t, "unreadable:bad", res.Outputs[0].Key)
		assert.JSONEq(t, "1", string(res.Outputs[0].Value))
		assert.Equal(t, "x", res.Outputs[1].Key)
		assert.Equal(t, "z", res.Outputs[3].Key)
		assert.JSONEq(t, "3", string(res.Outputs[3].Value))
	})
}

func TestRunnerEmptySource(t *testing.T) {
	r := NewRunner(sliceSource{}, nil)
	res, err := r.Run(context.Background(), wordCount{}, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Outputs)
	assert.Zero(t, res.Counters.RecordsScanned)
}

func TestShardCount(t *testing.T) {
	assert.Equal(t, 3, ShardCount(wordCount{}))

	var plain Job = wordCountNoShards{}
	assert.Equal(t, DefaultShardCount, ShardCount(plain))
}

type wordCountNoShards struct{}

func (wordCountNoShards) Name() string               { return "Plain" }
func (wordCountNoShards) EntityKinds() []models.Kind { return nil }
func (wordCountNoShards) Map(context.Context, models.Entity, Emitter) error {
	return nil
}
func (wordCountNoShards) Reduce(context.Context, string, []json.RawMessage, Emitter) error {
	return nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(wordCount{})
	reg.Register(wordCountNoShards{})

	j, ok := reg.Lookup("WordCount")
	require.True(t, ok)
	assert.Equal(t, "WordCount", j.Name())

	_, ok = reg.Lookup("Missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Plain", "WordCount"}, reg.Names())
	assert.Panics(t, func() { reg.Register(wordCount{}) })
}
