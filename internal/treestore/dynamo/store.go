// Package dynamo stores a catalog tree in a DynamoDB table.
//
// Like the mongo backend the tree is cut at a partition depth and every node
// at that depth is one item:
//
//	pk       S  partition path, "workouts/strength"
//	segments L  the same path split into keys
//	tree     M  the subtree below the partition
//	version  N  optimistic lock, bumped on every write
//
// Every mutation reads the partitions it touches, applies the change in
// memory and commits all of them with one TransactWriteItems call guarded by
// version conditions. A lost race surfaces as
// treestore.ErrConcurrentModification.
//
// A partition is one item, so everything below it shares DynamoDB's 400 KB
// item limit. At the default depth of 2 that is one goal subtree.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"peakfit/workout-catalog/internal/treestore"
)

// maxTransactItems is the TransactWriteItems limit.
const maxTransactItems = 100

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Config configures the DynamoDB tree store.
type Config struct {
	Table          string
	PartitionDepth int
	// ScanSegments is the number of parallel segments used for reads above
	// the partition depth.
	ScanSegments int
}

func (c *Config) validate() {
	if c.PartitionDepth < 1 {
		c.PartitionDepth = 2
	}
	if c.ScanSegments < 1 {
		c.ScanSegments = 1
	}
}

// Store implements treestore.Store on DynamoDB.
type Store struct {
	client API
	config Config
}

var _ treestore.Store = (*Store)(nil)

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{client: client, config: config}
}

// item is the stored shape of one partition.
type item struct {
	PK       string   `dynamodbav:"pk"`
	Segments []string `dynamodbav:"segments"`
	Tree     any      `dynamodbav:"tree"`
	Version  int64    `dynamodbav:"version"`
}

func (s *Store) key(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}}
}

func (s *Store) getItem(ctx context.Context, pk string) (*item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            s.key(pk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %q: %w", pk, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal partition %q: %w", pk, err)
	}
	it.Tree = normalize(it.Tree)
	return &it, nil
}

// scanPrefix loads every partition below p using a parallel segmented scan.
func (s *Store) scanPrefix(ctx context.Context, p treestore.Path) ([]item, error) {
	var (
		mu    sync.Mutex
		items []item
	)

	g, ctx := errgroup.WithContext(ctx)
	total := s.config.ScanSegments
	for segment := 0; segment < total; segment++ {
		input := &dynamodb.ScanInput{
			TableName:      aws.String(s.config.Table),
			ConsistentRead: aws.Bool(true),
			Segment:        aws.Int32(int32(segment)),
			TotalSegments:  aws.Int32(int32(total)),
		}
		if len(p) > 0 {
			input.FilterExpression = aws.String("begins_with(pk, :prefix)")
			input.ExpressionAttributeValues = map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: p.String() + "/"},
			}
		}

		g.Go(func() error {
			paginator := dynamodb.NewScanPaginator(s.client, input)
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					return fmt.Errorf("dynamodb scan %q: %w", p, err)
				}
				var batch []item
				if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
					return fmt.Errorf("unmarshal partitions: %w", err)
				}
				for i := range batch {
					batch[i].Tree = normalize(batch[i].Tree)
				}
				mu.Lock()
				items = append(items, batch...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].PK < items[j].PK })
	return items, nil
}

func (s *Store) Read(ctx context.Context, path treestore.Path) (any, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	depth := s.config.PartitionDepth

	if len(path) >= depth {
		it, err := s.getItem(ctx, path[:depth].String())
		if err != nil || it == nil {
			return nil, err
		}
		return treestore.Lookup(it.Tree, path[depth:]), nil
	}

	items, err := s.scanPrefix(ctx, path)
	if err != nil {
		return nil, err
	}
	var root any
	for _, it := range items {
		if len(it.Segments) != depth {
			continue
		}
		root, err = treestore.Assign(root, treestore.Path(it.Segments[len(path):]), it.Tree)
		if err != nil {
			return nil, fmt.Errorf("assemble %q: %w", it.PK, err)
		}
	}
	return root, nil
}

func (s *Store) Write(ctx context.Context, path treestore.Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return s.apply(ctx, []treestore.Update{{Path: path, Value: treestore.Clone(value)}})
}

func (s *Store) Merge(ctx context.Context, path treestore.Path, fields map[string]any) error {
	updates, err := treestore.MergeUpdates(path, fields)
	if err != nil {
		return err
	}
	for i := range updates {
		updates[i].Value = treestore.Clone(updates[i].Value)
	}
	return s.apply(ctx, updates)
}

func (s *Store) Remove(ctx context.Context, path treestore.Path) error {
	return s.Write(ctx, path, nil)
}

func (s *Store) GenerateKey(ctx context.Context, parent treestore.Path) (string, error) {
	return treestore.NewKey()
}

func (s *Store) MultiWrite(ctx context.Context, updates map[string]any) error {
	parsed, err := treestore.ParseUpdates(updates)
	if err != nil {
		return err
	}
	for i := range parsed {
		parsed[i].Value = treestore.Clone(parsed[i].Value)
	}
	return s.apply(ctx, parsed)
}

// partitionState is a partition loaded for a mutation.
type partitionState struct {
	path    treestore.Path
	tree    any
	version int64
	exists  bool
	dirty   bool
}

type workingSet map[string]*partitionState

func (ws workingSet) add(p treestore.Path, it *item) *partitionState {
	st := &partitionState{path: p}
	if it != nil {
		st.tree = it.Tree
		st.version = it.Version
		st.exists = true
	}
	ws[p.String()] = st
	return st
}

func (s *Store) load(ctx context.Context, updates []treestore.Update) (workingSet, error) {
	depth := s.config.PartitionDepth
	ws := make(workingSet)

	for _, u := range updates {
		if len(u.Path) < depth {
			items, err := s.scanPrefix(ctx, u.Path)
			if err != nil {
				return nil, err
			}
			for i := range items {
				if len(items[i].Segments) == depth {
					ws.add(treestore.Path(items[i].Segments), &items[i])
				}
			}
			continue
		}
		p := u.Path[:depth]
		if _, ok := ws[p.String()]; ok {
			continue
		}
		it, err := s.getItem(ctx, p.String())
		if err != nil {
			return nil, err
		}
		ws.add(p, it)
	}
	return ws, nil
}

func (s *Store) apply(ctx context.Context, updates []treestore.Update) error {
	depth := s.config.PartitionDepth

	ws, err := s.load(ctx, updates)
	if err != nil {
		return err
	}

	for _, u := range updates {
		if len(u.Path) >= depth {
			st := ws[u.Path[:depth].String()]
			if st.tree, err = treestore.Assign(st.tree, u.Path[depth:], u.Value); err != nil {
				return err
			}
			st.dirty = true
			continue
		}

		parts, err := treestore.Explode(u.Path, u.Value, depth)
		if err != nil {
			return err
		}
		for _, st := range ws {
			if st.path.HasPrefix(u.Path) {
				st.tree = nil
				st.dirty = true
			}
		}
		for _, part := range parts {
			st, ok := ws[part.Path.String()]
			if !ok {
				st = ws.add(part.Path, nil)
			}
			st.tree = part.Value
			st.dirty = true
		}
	}

	return s.commit(ctx, ws)
}

func (s *Store) commit(ctx context.Context, ws workingSet) error {
	keys := make([]string, 0, len(ws))
	for k := range ws {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var txItems []types.TransactWriteItem
	for _, k := range keys {
		st := ws[k]
		if !st.dirty {
			continue
		}
		if st.tree == nil {
			if !st.exists {
				continue
			}
			txItems = append(txItems, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:           aws.String(s.config.Table),
					Key:                 s.key(k),
					ConditionExpression: aws.String("version = :v"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(st.version, 10)},
					},
				},
			})
			continue
		}

		av, err := attributevalue.MarshalMap(item{
			PK:       k,
			Segments: []string(st.path),
			Tree:     st.tree,
			Version:  st.version + 1,
		})
		if err != nil {
			return fmt.Errorf("marshal partition %q: %w", k, err)
		}
		put := &types.Put{
			TableName: aws.String(s.config.Table),
			Item:      av,
		}
		if st.exists {
			put.ConditionExpression = aws.String("version = :v")
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(st.version, 10)},
			}
		} else {
			put.ConditionExpression = aws.String("attribute_not_exists(pk)")
		}
		txItems = append(txItems, types.TransactWriteItem{Put: put})
	}

	if len(txItems) == 0 {
		return nil
	}
	if len(txItems) > maxTransactItems {
		return fmt.Errorf("%w: change spans %d partitions, more than %d", treestore.ErrInvalidPath, len(txItems), maxTransactItems)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: txItems,
	})
	return mapTransactionError(err)
}

// mapTransactionError turns failed version conditions into
// treestore.ErrConcurrentModification.
func mapTransactionError(err error) error {
	if err == nil {
		return nil
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %s", treestore.ErrConcurrentModification, txErr.ErrorMessage())
			}
		}
	}
	return fmt.Errorf("dynamodb transact write: %w", err)
}

// normalize turns attributevalue's float64 numbers back into ints where they
// are integral.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if c == nil {
				delete(t, k)
				continue
			}
			t[k] = normalize(c)
		}
		return t
	case []any:
		for i, c := range t {
			t[i] = normalize(c)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int(t)
		}
		return t
	default:
		return v
	}
}
