package dynamo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakfit/workout-catalog/internal/treestore"
)

// fakeDynamo keeps items by pk and evaluates the two condition expressions
// the store issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	transactCalls  int
	lastTransact   []types.TransactWriteItem
	beforeTransact func(f *fakeDynamo)
	transactErr    error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["pk"].(*types.AttributeValueMemberS).Value
}

func versionOf(av map[string]types.AttributeValue) string {
	if v, ok := av["version"].(*types.AttributeValueMemberN); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := ""
	if v, ok := in.ExpressionAttributeValues[":prefix"]; ok {
		prefix = v.(*types.AttributeValueMemberS).Value
	}
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	segment, total := int(aws.ToInt32(in.Segment)), int(aws.ToInt32(in.TotalSegments))
	if total == 0 {
		total = 1
	}
	out := &dynamodb.ScanOutput{}
	for i, k := range keys {
		if i%total != segment || !strings.HasPrefix(k, prefix) {
			continue
		}
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.beforeTransact != nil {
		f.beforeTransact(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++
	f.lastTransact = in.TransactItems
	if f.transactErr != nil {
		return nil, f.transactErr
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	check := func(i int, pk, cond string, values map[string]types.AttributeValue) {
		existing, exists := f.items[pk]
		ok := true
		switch cond {
		case "attribute_not_exists(pk)":
			ok = !exists
		case "version = :v":
			ok = exists && versionOf(existing) == values[":v"].(*types.AttributeValueMemberN).Value
		}
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	for i, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			check(i, pkOf(ti.Put.Item), aws.ToString(ti.Put.ConditionExpression), ti.Put.ExpressionAttributeValues)
		case ti.Delete != nil:
			check(i, pkOf(ti.Delete.Key), aws.ToString(ti.Delete.ConditionExpression), ti.Delete.ExpressionAttributeValues)
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			f.items[pkOf(ti.Put.Item)] = ti.Put.Item
		case ti.Delete != nil:
			delete(f.items, pkOf(ti.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func newTestStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	return New(fake, Config{Table: "catalog", PartitionDepth: 2, ScanSegments: 3}), fake
}

const leaf = "workouts/strength/none/beginner/monday/exercises/k1"

func TestStore_WriteReadDeep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, fake := newTestStore(t)

	require.NoError(t, s.Write(ctx, treestore.MustParsePath(leaf), map[string]any{"id": "k1", "duration": 10}))

	got, err := s.Read(ctx, treestore.MustParsePath(leaf))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "k1", "duration": 10}, got)

	require.Contains(t, fake.items, "workouts/strength")
	assert.Equal(t, "1", versionOf(fake.items["workouts/strength"]))

	require.NoError(t, s.Write(ctx, treestore.MustParsePath(leaf+"/title"), "Push-ups"))
	assert.Equal(t, "2", versionOf(fake.items["workouts/strength"]))
}

func TestStore_ShallowReadAssemblesPartitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, p := range []string{
		"workouts/strength/none/beginner/monday/exercises/a",
		"workouts/cardio/knee/advanced/friday/exercises/b",
		"workouts/yoga/none/beginner/sunday/exercises/c",
		"other/x/y",
	} {
		require.NoError(t, s.Write(ctx, treestore.MustParsePath(p), map[string]any{"id": p}))
	}

	got, err := s.Read(ctx, treestore.MustParsePath("workouts"))
	require.NoError(t, err)
	root, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Len(t, root, 3)
	assert.Equal(t,
		map[string]any{"id": "workouts/cardio/knee/advanced/friday/exercises/b"},
		treestore.Lookup(root, treestore.MustParsePath("cardio/knee/advanced/friday/exercises/b")))

	all, err := s.Read(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_MultiWriteIsOneTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, fake := newTestStore(t)

	to := "workouts/cardio/none/beginner/tuesday/exercises/k1"
	require.NoError(t, s.Write(ctx, treestore.MustParsePath(leaf), map[string]any{"id": "k1"}))
	calls := fake.transactCalls

	require.NoError(t, s.MultiWrite(ctx, map[string]any{to: map[string]any{"id": "k1"}, leaf: nil}))

	assert.Equal(t, calls+1, fake.transactCalls)
	assert.Len(t, fake.lastTransact, 2)

	old, err := s.Read(ctx, treestore.MustParsePath(leaf))
	require.NoError(t, err)
	assert.Nil(t, old)
	moved, err := s.Read(ctx, treestore.MustParsePath(to))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "k1"}, moved)

	exercises, err := s.Read(ctx, treestore.MustParsePath("workouts/strength/none/beginner/monday/exercises"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, exercises)
}

func TestStore_ConcurrentModification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, fake := newTestStore(t)

	require.NoError(t, s.Write(ctx, treestore.MustParsePath(leaf), map[string]any{"id": "k1"}))

	fake.beforeTransact = func(f *fakeDynamo) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.items["workouts/strength"]["version"] = &types.AttributeValueMemberN{Value: "7"}
	}
	err := s.Write(ctx, treestore.MustParsePath(leaf+"/title"), "x")

	assert.ErrorIs(t, err, treestore.ErrConcurrentModification)
}

func TestStore_RemovePartitionAndRoot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, fake := newTestStore(t)

	require.NoError(t, s.Write(ctx, treestore.MustParsePath(leaf), map[string]any{"id": "k1"}))
	require.NoError(t, s.Write(ctx, treestore.MustParsePath("workouts/cardio/x"), 1))

	require.NoError(t, s.Remove(ctx, treestore.MustParsePath("workouts/cardio")))
	assert.NotContains(t, fake.items, "workouts/cardio")
	assert.Contains(t, fake.items, "workouts/strength")

	require.NoError(t, s.Remove(ctx, treestore.MustParsePath("workouts")))
	assert.Empty(t, fake.items)

	got, err := s.Read(ctx, treestore.MustParsePath("workouts"))
	require.NoError(t, err)
	assert.Nil(t, got)

	calls := fake.transactCalls
	require.NoError(t, s.Remove(ctx, treestore.MustParsePath("workouts/none/left")))
	assert.Equal(t, calls, fake.transactCalls, "removing an absent node writes nothing")
}

func TestStore_ShallowWriteReplacesSubtree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, fake := newTestStore(t)

	require.NoError(t, s.Write(ctx, treestore.MustParsePath("workouts/old/x"), 1))
	require.NoError(t, s.Write(ctx, treestore.MustParsePath("workouts"), map[string]any{
		"strength": map[string]any{"none": true},
	}))

	assert.NotContains(t, fake.items, "workouts/old")
	got, err := s.Read(ctx, treestore.MustParsePath("workouts/strength/none"))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	err = s.Write(ctx, treestore.MustParsePath("workouts"), "scalar")
	assert.ErrorIs(t, err, treestore.ErrInvalidPath)
}

func TestStore_UnmarshalledItemShape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, fake := newTestStore(t)

	require.NoError(t, s.Write(ctx, treestore.MustParsePath(leaf), map[string]any{"id": "k1"}))

	var it item
	require.NoError(t, attributevalue.UnmarshalMap(fake.items["workouts/strength"], &it))
	assert.Equal(t, "workouts/strength", it.PK)
	assert.Equal(t, []string{"workouts", "strength"}, it.Segments)
	assert.EqualValues(t, 1, it.Version)
}

func TestMapTransactionError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, mapTransactionError(nil))

	other := errors.New("throttled")
	assert.ErrorIs(t, mapTransactionError(other), other)

	txErr := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{}, {Code: aws.String("ConditionalCheckFailed")}},
	}
	assert.ErrorIs(t, mapTransactionError(txErr), treestore.ErrConcurrentModification)

	capacity := &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
	}
	assert.NotErrorIs(t, mapTransactionError(capacity), treestore.ErrConcurrentModification)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	in := map[string]any{"duration": float64(10), "ratio": 0.5, "gone": nil, "list": []any{float64(2)}}
	assert.Equal(t, map[string]any{"duration": 10, "ratio": 0.5, "list": []any{2}}, normalize(in))
}
