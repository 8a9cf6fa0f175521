package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB コレクション名。
const (
	UsersCollection = "users"
	NotesCollection = "notes"
)

// OpenMongo はMongoDBクライアントを接続し、指定データベースを返す。
// 接続確認としてPingを実行する。
func OpenMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client, client.Database(dbName), nil
}

// EnsureMongoIndexes はusers/notesコレクションのインデックスを作成する。
// PostgreSQLのマイグレーションと同等の制約を張る。既存インデックスは再作成されない。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_key"),
		},
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "provider_user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_provider_identity_key"),
		},
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	noteIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notes_user_created"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "is_pinned", Value: -1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notes_user_pinned_created"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "category", Value: 1}},
			Options: options.Index().SetName("idx_notes_user_category"),
		},
	}
	if _, err := db.Collection(NotesCollection).Indexes().CreateMany(ctx, noteIndexes); err != nil {
		return fmt.Errorf("failed to create note indexes: %w", err)
	}

	return nil
}

// MongoPinger はmongo.ClientをヘルスチェッカーのPingContextに適合させる。
type MongoPinger struct {
	Client *mongo.Client
}

// PingContext はプライマリへの疎通を確認する。
func (p MongoPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx, readpref.Primary())
}
