package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/notekeeper/internal/database"
	"github.com/hitoshi/notekeeper/internal/model"
)

// userDocument はusersコレクションのドキュメント形式。
type userDocument struct {
	ID             string     `bson:"_id"`
	Provider       string     `bson:"provider"`
	ProviderUserID string     `bson:"provider_user_id"`
	Email          string     `bson:"email"`
	Name           string     `bson:"name"`
	AvatarURL      string     `bson:"avatar_url"`
	IsActive       bool       `bson:"is_active"`
	LastLoginAt    time.Time  `bson:"last_login_at"`
	LastLogoutAt   *time.Time `bson:"last_logout_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func (d *userDocument) toModel() *model.User {
	return &model.User{
		ID:             d.ID,
		Provider:       d.Provider,
		ProviderUserID: d.ProviderUserID,
		Email:          d.Email,
		Name:           d.Name,
		AvatarURL:      d.AvatarURL,
		IsActive:       d.IsActive,
		LastLoginAt:    d.LastLoginAt,
		LastLogoutAt:   d.LastLogoutAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	coll *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(database.UsersCollection)}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return doc.toModel(), nil
}

// UpsertByIdentity はFindOneAndUpdate(upsert)でユーザーを作成または更新する。
// 新規作成かどうかは$setOnInsertで割り当てたIDが返ってきたかで判定する。
func (r *MongoUserRepo) UpsertByIdentity(ctx context.Context, identity *model.Identity, now time.Time) (*model.User, bool, error) {
	newID := model.NewID()
	filter, update := userUpsertDocuments(identity, newID, now)

	var doc userDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return doc.toModel(), doc.ID == newID, nil
}

// userUpsertDocuments はユーザーupsertのフィルタと更新ドキュメントを組み立てる。
func userUpsertDocuments(identity *model.Identity, newID string, now time.Time) (bson.M, bson.M) {
	filter := bson.M{
		"provider":         identity.Provider,
		"provider_user_id": identity.ProviderUserID,
	}
	update := bson.M{
		"$set": bson.M{
			"email":         identity.Email,
			"name":          identity.Name,
			"avatar_url":    identity.AvatarURL,
			"last_login_at": now,
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{
			"_id":        newID,
			"is_active":  true,
			"created_at": now,
		},
	}
	return filter, update
}

// UpdateLastLogout はlast_logout_atを記録する。
func (r *MongoUserRepo) UpdateLastLogout(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_logout_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update last logout: %w", err)
	}
	return nil
}

// SetActive は有効フラグを更新する。
func (r *MongoUserRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user active flag: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// MongoDBにはカスケード削除がないため、ノートは呼び出し側で先に削除する。
func (r *MongoUserRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
