// Package mongo stores a catalog tree in MongoDB.
//
// The tree is cut at a fixed partition depth: every node at that depth is one
// document in the catalog_nodes collection, holding its subtree in the "tree"
// field. Paths below the partition depth are updated in place with dotted
// $set/$unset; paths above it span several documents. Operations touching
// more than one document run in a session transaction, so the server must be
// a replica set member.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peakfit/workout-catalog/internal/treestore"
)

const (
	// CollectionName holds one document per partition.
	CollectionName = "catalog_nodes"

	DefaultPartitionDepth = 2
)

// Store implements treestore.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	depth  int
}

var _ treestore.Store = (*Store)(nil)

// NewStore creates a tree store on db. A partitionDepth below 1 selects
// DefaultPartitionDepth.
func NewStore(db *mongo.Database, partitionDepth int) *Store {
	if partitionDepth < 1 {
		partitionDepth = DefaultPartitionDepth
	}
	return &Store{
		client: db.Client(),
		coll:   db.Collection(CollectionName),
		depth:  partitionDepth,
	}
}

// Collection returns the backing collection, for index setup.
func (s *Store) Collection() *mongo.Collection {
	return s.coll
}

// partition is the stored document shape.
type partition struct {
	ID        string   `bson:"_id"`
	Segments  []string `bson:"segments"`
	Ancestors []string `bson:"ancestors"`
	Tree      any      `bson:"tree"`
}

func newPartition(p treestore.Path, tree any) partition {
	ancestors := make([]string, 0, len(p))
	for i := 1; i < len(p); i++ {
		ancestors = append(ancestors, p[:i].String())
	}
	return partition{
		ID:        p.String(),
		Segments:  []string(p),
		Ancestors: ancestors,
		Tree:      tree,
	}
}

// prefixFilter selects every partition below a path shorter than the
// partition depth.
func prefixFilter(p treestore.Path) bson.M {
	if len(p) == 0 {
		return bson.M{}
	}
	return bson.M{"ancestors": p.String()}
}

func treeField(rel treestore.Path) string {
	if len(rel) == 0 {
		return "tree"
	}
	return "tree." + strings.Join(rel, ".")
}

func (s *Store) Read(ctx context.Context, path treestore.Path) (any, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	if len(path) >= s.depth {
		var doc partition
		err := s.coll.FindOne(ctx, bson.M{"_id": path[:s.depth].String()}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("mongo read %q: %w", path, err)
		}
		return treestore.Lookup(normalize(doc.Tree), path[s.depth:]), nil
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, prefixFilter(path), findOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo read %q: %w", path, err)
	}
	defer cursor.Close(ctx)

	var root any
	for cursor.Next(ctx) {
		var doc partition
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode partition: %w", err)
		}
		if len(doc.Segments) < len(path) {
			continue
		}
		root, err = treestore.Assign(root, treestore.Path(doc.Segments[len(path):]), normalize(doc.Tree))
		if err != nil {
			return nil, fmt.Errorf("mongo assemble %q: %w", doc.ID, err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo read %q: %w", path, err)
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

type op func(ctx context.Context) error

// apply runs the operations planned for updates, inside a transaction when
// more than one is needed.
func (s *Store) apply(ctx context.Context, updates []treestore.Update) error {
	var ops []op
	for _, u := range updates {
		planned, err := s.plan(u)
		if err != nil {
			return err
		}
		ops = append(ops, planned...)
	}

	switch len(ops) {
	case 0:
		return nil
	case 1:
		return ops[0](ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, o := range ops {
			if err := o(sc); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) plan(u treestore.Update) ([]op, error) {
	p := u.Path

	switch {
	case len(p) > s.depth:
		return s.planDeep(p, u.Value), nil

	case len(p) == s.depth:
		id := p.String()
		if u.Value == nil {
			return []op{func(ctx context.Context) error {
				if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
					return fmt.Errorf("mongo remove %q: %w", p, err)
				}
				return nil
			}}, nil
		}
		doc := newPartition(p, u.Value)
		return []op{func(ctx context.Context) error {
			opts := options.Replace().SetUpsert(true)
			if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
				return fmt.Errorf("mongo write %q: %w", p, err)
			}
			return nil
		}}, nil

	default:
		parts, err := treestore.Explode(p, u.Value, s.depth)
		if err != nil {
			return nil, err
		}
		ops := []op{func(ctx context.Context) error {
			if _, err := s.coll.DeleteMany(ctx, prefixFilter(p)); err != nil {
				return fmt.Errorf("mongo remove %q: %w", p, err)
			}
			return nil
		}}
		if len(parts) > 0 {
			docs := make([]interface{}, 0, len(parts))
			for _, part := range parts {
				docs = append(docs, newPartition(part.Path, part.Value))
			}
			ops = append(ops, func(ctx context.Context) error {
				if _, err := s.coll.InsertMany(ctx, docs); err != nil {
					return fmt.Errorf("mongo write %q: %w", p, err)
				}
				return nil
			})
		}
		return ops, nil
	}
}

func (s *Store) planDeep(p treestore.Path, value any) []op {
	id := p[:s.depth].String()
	rel := p[s.depth:]
	field := treeField(rel)

	if value != nil {
		doc := newPartition(p[:s.depth], nil)
		update := bson.M{
			"$set":         bson.M{field: value},
			"$setOnInsert": bson.M{"segments": doc.Segments, "ancestors": doc.Ancestors},
		}
		return []op{func(ctx context.Context) error {
			opts := options.Update().SetUpsert(true)
			if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
				return fmt.Errorf("mongo write %q: %w", p, err)
			}
			return nil
		}}
	}

	ops := []op{func(ctx context.Context) error {
		if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{field: ""}}); err != nil {
			return fmt.Errorf("mongo remove %q: %w", p, err)
		}
		return nil
	}}

	// $unset leaves null in arrays; pull it so list elements are really removed.
	if _, err := strconv.Atoi(rel[len(rel)-1]); err == nil {
		parent := treeField(rel[:len(rel)-1])
		ops = append(ops, func(ctx context.Context) error {
			filter := bson.M{"_id": id, parent: bson.M{"$type": "array"}}
			if _, err := s.coll.UpdateOne(ctx, filter, bson.M{"$pull": bson.M{parent: nil}}); err != nil {
				return fmt.Errorf("mongo remove %q: %w", p, err)
			}
			return nil
		})
	}
	return ops
}

// normalize converts decoded BSON values into plain tree values.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			if e.Value != nil {
				out[e.Key] = normalize(e.Value)
			}
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, c := range t {
			if c != nil {
				out[k] = normalize(c)
			}
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			if c != nil {
				out[k] = normalize(c)
			}
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = normalize(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = normalize(c)
		}
		return out
	case int32:
		return int(t)
	case int64:
		return int(t)
	default:
		return v
	}
}
