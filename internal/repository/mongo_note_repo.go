package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/notekeeper/internal/database"
	"github.com/hitoshi/notekeeper/internal/model"
)

// noteDocument はnotesコレクションのドキュメント形式。
type noteDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	Tags      []string  `bson:"tags"`
	Category  string    `bson:"category"`
	IsPrivate bool      `bson:"is_private"`
	IsPinned  bool      `bson:"is_pinned"`
	Color     string    `bson:"color"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func newNoteDocument(n *model.Note) *noteDocument {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return &noteDocument{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      tags,
		Category:  n.Category,
		IsPrivate: n.IsPrivate,
		IsPinned:  n.IsPinned,
		Color:     string(n.Color),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (d *noteDocument) toModel() *model.Note {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &model.Note{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		Content:   d.Content,
		Tags:      tags,
		Category:  d.Category,
		IsPrivate: d.IsPrivate,
		IsPinned:  d.IsPinned,
		Color:     model.Color(d.Color),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoNoteRepo はMongoDBを使用したノートリポジトリ。
type MongoNoteRepo struct {
	coll *mongo.Collection
}

// NewMongoNoteRepo はMongoNoteRepoを生成する。
func NewMongoNoteRepo(db *mongo.Database) *MongoNoteRepo {
	return &MongoNoteRepo{coll: db.Collection(database.NotesCollection)}
}

func ownedNote(userID, noteID string) bson.M {
	return bson.M{"_id": noteID, "user_id": userID}
}

// decodeNote はSingleResultをノートに変換する。該当ドキュメントがなければnilを返す。
func decodeNote(res *mongo.SingleResult, op string) (*model.Note, error) {
	var doc noteDocument
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return doc.toModel(), nil
}

// Create はノートを作成する。
func (r *MongoNoteRepo) Create(ctx context.Context, note *model.Note) error {
	if _, err := r.coll.InsertOne(ctx, newNoteDocument(note)); err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// FindByID はユーザーが所有する指定IDのノートを取得する。
func (r *MongoNoteRepo) FindByID(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return decodeNote(r.coll.FindOne(ctx, ownedNote(userID, noteID)), "find note")
}

// List は検索条件に一致するノートの1ページ分と総件数を返す。
func (r *MongoNoteRepo) List(ctx context.Context, userID string, q model.NoteQuery) ([]*model.Note, int, error) {
	filter := buildMongoListFilter(userID, q)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	opts := options.Find().
		SetSort(mongoListSort(q.SortBy)).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notes: %w", err)
	}
	defer cur.Close(ctx)

	notes := make([]*model.Note, 0, q.Limit)
	for cur.Next(ctx) {
		var doc noteDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode note: %w", err)
		}
		notes = append(notes, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, int(total), nil
}

// buildMongoListFilter は一覧の絞り込み条件を組み立てる。
// 検索語は正規表現としてエスケープし、大文字小文字を区別しない部分一致にする。
func buildMongoListFilter(userID string, q model.NoteQuery) bson.M {
	filter := bson.M{"user_id": userID}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Search != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(q.Search), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"content": re},
			bson.M{"tags": re},
		}
	}
	return filter
}

// mongoListSort は並び順ごとのソート指定を返す。同順位は_idで安定させる。
func mongoListSort(sortBy model.SortBy) bson.D {
	switch sortBy {
	case model.SortByTitle:
		return bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}}
	case model.SortByUpdated:
		return bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "is_pinned", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	}
}

// Update はノートの全フィールドを置き換える。
func (r *MongoNoteRepo) Update(ctx context.Context, userID, noteID string, in *model.NoteInput, at time.Time) (*model.Note, error) {
	return decodeNote(r.coll.FindOneAndUpdate(ctx, ownedNote(userID, noteID),
		bson.M{"$set": noteUpdateFields(in, at)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	), "update note")
}

// noteUpdateFields は全置換更新の$setドキュメントを組み立てる。IsPrivateがnilなら含めない。
func noteUpdateFields(in *model.NoteInput, at time.Time) bson.M {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	set := bson.M{
		"title":      in.Title,
		"content":    in.Content,
		"tags":       tags,
		"category":   in.Category,
		"color":      string(in.Color),
		"is_pinned":  in.IsPinned,
		"updated_at": at,
	}
	if in.IsPrivate != nil {
		set["is_private"] = *in.IsPrivate
	}
	return set
}

// TogglePin は集計パイプライン更新でピン留めフラグを1回の操作で反転する。
func (r *MongoNoteRepo) TogglePin(ctx context.Context, userID, noteID string) (*model.Note, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "is_pinned", Value: bson.D{{Key: "$not", Value: bson.A{"$is_pinned"}}}}}}},
	}
	return decodeNote(r.coll.FindOneAndUpdate(ctx, ownedNote(userID, noteID), pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	), "toggle pin")
}

// Delete はノートを削除し、削除したノートを返す。
func (r *MongoNoteRepo) Delete(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return decodeNote(r.coll.FindOneAndDelete(ctx, ownedNote(userID, noteID)), "delete note")
}

// DeleteMany は指定IDのうちユーザーが所有するノートを削除する。
func (r *MongoNoteRepo) DeleteMany(ctx context.Context, userID string, noteIDs []string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"user_id": userID, "_id": bson.M{"$in": noteIDs}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteByUserID はユーザーの全ノートを削除する。
func (r *MongoNoteRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes by user: %w", err)
	}
	return res.DeletedCount, nil
}

type noteOverview struct {
	Total      int      `bson:"total"`
	Pinned     int      `bson:"pinned"`
	Categories []string `bson:"categories"`
	AvgContent float64  `bson:"avg_content"`
}

type categoryGroup struct {
	Category string `bson:"_id"`
	Count    int    `bson:"count"`
}

// Stats はユーザーのノート集計を返す。
func (r *MongoNoteRepo) Stats(ctx context.Context, userID string) (*model.NoteStats, error) {
	match := bson.D{{Key: "$match", Value: bson.M{"user_id": userID}}}

	cur, err := r.coll.Aggregate(ctx, mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.M{"$sum": 1}},
			{Key: "pinned", Value: bson.M{"$sum": bson.M{"$cond": bson.A{"$is_pinned", 1, 0}}}},
			{Key: "categories", Value: bson.M{"$addToSet": "$category"}},
			{Key: "avg_content", Value: bson.M{"$avg": bson.M{"$strLenCP": "$content"}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate notes: %w", err)
	}
	var overview []noteOverview
	if err := cur.All(ctx, &overview); err != nil {
		return nil, fmt.Errorf("failed to decode note aggregate: %w", err)
	}

	stats := &model.NoteStats{Categories: []string{}, CategoryBreakdown: []model.CategoryCount{}}
	if len(overview) > 0 {
		o := overview[0]
		stats.TotalNotes = o.Total
		stats.PinnedNotes = o.Pinned
		stats.AverageContentLength = o.AvgContent
		if o.Categories != nil {
			stats.Categories = o.Categories
		}
		sort.Strings(stats.Categories)
	}

	cur, err = r.coll.Aggregate(ctx, mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "count", Value: bson.M{"$sum": 1}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query category breakdown: %w", err)
	}
	var groups []categoryGroup
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode category breakdown: %w", err)
	}
	for _, g := range groups {
		stats.CategoryBreakdown = append(stats.CategoryBreakdown, model.CategoryCount{Category: g.Category, Count: g.Count})
	}

	return stats, nil
}

// compile-time interface check
var _ NoteRepository = (*MongoNoteRepo)(nil)
