// Package mongo implements repository.Repository on MongoDB.
//
// Each invariant-guarding write is a single-document conditional update:
// the quota counter uses an aggregation-pipeline update so the lazy window
// reset and the increment happen in one round trip.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colUsers        = "users"
	colSessions     = "sessions"
	colJobs         = "jobs"
	colApplications = "applications"
	colOrders       = "orders"
	colSettings     = "settings"

	settingsID = "platform"
)

// Store is a MongoDB-backed repository.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ repository.Repository = (*Store)(nil)

// Open connects to uri, selects database and ensures indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connection failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the indexes the uniqueness rules depend on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "emailKey", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colSessions: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		colJobs: {
			{Keys: bson.D{{Key: "ngoId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colApplications: {
			{
				Keys: bson.D{{Key: "activeKey", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "activeKey", Value: bson.D{{Key: "$exists", Value: true}}}}),
			},
			{Keys: bson.D{{Key: "volunteerId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "providerOrderId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrConflict
	}
	return err
}

// exists reports ErrNotFound when no document in col has the given id.
func (s *Store) exists(ctx context.Context, col string, filter bson.D) error {
	n, err := s.db.Collection(col).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func byID(id uuid.UUID) bson.D {
	return bson.D{{Key: "_id", Value: id.String()}}
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, newUserDoc(u))
	return translate(err)
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*domain.User, error) {
	var d userDoc
	if err := s.db.Collection(colUsers).FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return d.toDomain()
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.findUser(ctx, byID(id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.D{{Key: "emailKey", Value: strings.ToLower(email)}})
}

func planStateSet(state domain.PlanState) bson.D {
	return bson.D{
		{Key: "role", Value: string(state.Role)},
		{Key: "plan", Value: string(state.Plan)},
		{Key: "planExpiresAt", Value: state.PlanExpiresAt},
		{Key: "planActivatedAt", Value: state.PlanActivatedAt},
		{Key: "planCancelled", Value: state.PlanCancelled},
		{Key: "planCancelledAt", Value: state.PlanCancelledAt},
		{Key: "pendingPlan", Value: string(state.PendingPlan)},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}
}

func (s *Store) UpdatePlanState(ctx context.Context, id uuid.UUID, state domain.PlanState) error {
	res, err := s.db.Collection(colUsers).UpdateOne(ctx, byID(id), bson.D{{Key: "$set", Value: planStateSet(state)}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ClaimRole(ctx context.Context, id uuid.UUID, state domain.PlanState, orgName string) (bool, error) {
	set := planStateSet(state)
	if orgName != "" {
		set = append(set, bson.E{Key: "orgName", Value: orgName})
	}
	filter := bson.D{{Key: "_id", Value: id.String()}, {Key: "role", Value: ""}}

	res, err := s.db.Collection(colUsers).UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, s.exists(ctx, colUsers, byID(id))
}

func (s *Store) ConsumeApplicationQuota(ctx context.Context, id uuid.UUID, limit int, window time.Duration, now time.Time) (int, bool, error) {
	if limit <= 0 {
		u, err := s.GetUserByID(ctx, id)
		if err != nil {
			return 0, false, err
		}
		return u.MonthlyApplicationCount, false, nil
	}

	windowStart := now.Add(-window)
	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "monthlyApplicationResetAt", Value: nil}},
			bson.D{{Key: "monthlyApplicationResetAt", Value: bson.D{{Key: "$lte", Value: windowStart}}}},
			bson.D{{Key: "monthlyApplicationCount", Value: bson.D{{Key: "$lt", Value: limit}}}},
		}},
	}

	resetDue := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$monthlyApplicationResetAt", nil}}}, nil}}},
		bson.D{{Key: "$lte", Value: bson.A{"$monthlyApplicationResetAt", windowStart}}},
	}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "monthlyApplicationCount", Value: bson.D{{Key: "$cond", Value: bson.A{
				resetDue, 1, bson.D{{Key: "$add", Value: bson.A{"$monthlyApplicationCount", 1}}},
			}}}},
			{Key: "monthlyApplicationResetAt", Value: bson.D{{Key: "$cond", Value: bson.A{
				resetDue, now, "$monthlyApplicationResetAt",
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}

	var d userDoc
	err := s.db.Collection(colUsers).
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&d)
	if err == nil {
		return d.MonthlyApplicationCount, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, translate(err)
	}

	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return u.MonthlyApplicationCount, false, nil
}

func (s *Store) ReleaseApplicationQuota(ctx context.Context, id uuid.UUID) error {
	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "monthlyApplicationCount", Value: bson.D{{Key: "$gt", Value: 0}}},
	}
	res, err := s.db.Collection(colUsers).UpdateOne(ctx, filter,
		bson.D{{Key: "$inc", Value: bson.D{{Key: "monthlyApplicationCount", Value: -1}}}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return s.exists(ctx, colUsers, byID(id))
	}
	return nil
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.Collection(colSessions).InsertOne(ctx, sessionDoc{
		TokenHash: sess.TokenHash,
		UserID:    sess.UserID.String(),
		ExpiresAt: sess.ExpiresAt,
		CreatedAt: sess.CreatedAt,
	})
	return translate(err)
}

func (s *Store) GetSession(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	filter := bson.D{
		{Key: "_id", Value: tokenHash},
		{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	var d sessionDoc
	if err := s.db.Collection(colSessions).FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, translate(err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.Session{UserID: userID, TokenHash: d.TokenHash, ExpiresAt: d.ExpiresAt, CreatedAt: d.CreatedAt}, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.Collection(colSessions).DeleteOne(ctx, bson.D{{Key: "_id", Value: tokenHash}})
	return translate(err)
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	_, err := s.db.Collection(colJobs).InsertOne(ctx, newJobDoc(j))
	return translate(err)
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	var d jobDoc
	if err := s.db.Collection(colJobs).FindOne(ctx, byID(id)).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return d.toDomain()
}

func (s *Store) CountOpenJobs(ctx context.Context, ngoID uuid.UUID) (int, error) {
	n, err := s.db.Collection(colJobs).CountDocuments(ctx, bson.D{
		{Key: "ngoId", Value: ngoID.String()},
		{Key: "status", Value: string(domain.JobStatusOpen)},
	})
	return int(n), translate(err)
}

func (s *Store) findJobs(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]domain.Job, error) {
	cur, err := s.db.Collection(colJobs).Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	var docs []jobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(docs))
	for _, d := range docs {
		j, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (s *Store) ListOpenJobs(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return s.findJobs(ctx, bson.D{{Key: "status", Value: string(domain.JobStatusOpen)}}, opts)
}

func (s *Store) ListJobsByNGO(ctx context.Context, ngoID uuid.UUID) ([]domain.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.findJobs(ctx, bson.D{{Key: "ngoId", Value: ngoID.String()}}, opts)
}

func (s *Store) SetJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, now time.Time) error {
	res, err := s.db.Collection(colJobs).UpdateOne(ctx, byID(id), bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(status)},
		{Key: "updatedAt", Value: now},
	}}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// =============================================================================
// Applications
// =============================================================================

func (s *Store) CreateApplication(ctx context.Context, a *domain.Application) error {
	_, err := s.db.Collection(colApplications).InsertOne(ctx, newApplicationDoc(a))
	return translate(err)
}

func (s *Store) findApplication(ctx context.Context, filter bson.D) (*domain.Application, error) {
	var d applicationDoc
	if err := s.db.Collection(colApplications).FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return d.toDomain()
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return s.findApplication(ctx, byID(id))
}

func (s *Store) FindActiveApplication(ctx context.Context, volunteerID, jobID uuid.UUID) (*domain.Application, error) {
	return s.findApplication(ctx, bson.D{{Key: "activeKey", Value: activeKey(volunteerID.String(), jobID.String())}})
}

func (s *Store) findApplications(ctx context.Context, filter bson.D) ([]domain.Application, error) {
	cur, err := s.db.Collection(colApplications).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, translate(err)
	}
	var docs []applicationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	apps := make([]domain.Application, 0, len(docs))
	for _, d := range docs {
		a, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, nil
}

func (s *Store) ListApplicationsByVolunteer(ctx context.Context, volunteerID uuid.UUID) ([]domain.Application, error) {
	return s.findApplications(ctx, bson.D{{Key: "volunteerId", Value: volunteerID.String()}})
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	return s.findApplications(ctx, bson.D{{Key: "jobId", Value: jobID.String()}})
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, entry domain.TimelineEntry) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(entry.Status)},
			{Key: "updatedAt", Value: entry.At},
		}},
		{Key: "$push", Value: bson.D{{Key: "timeline", Value: entry}}},
	}
	if entry.Status == domain.ApplicationStatusWithdrawn {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "activeKey", Value: ""}}})
	}

	res, err := s.db.Collection(colApplications).UpdateOne(ctx, byID(id), update)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// =============================================================================
// Orders
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.Collection(colOrders).InsertOne(ctx, newOrderDoc(o))
	return translate(err)
}

func (s *Store) GetOrderByProviderID(ctx context.Context, providerOrderID string) (*domain.Order, error) {
	var d orderDoc
	err := s.db.Collection(colOrders).FindOne(ctx, bson.D{{Key: "providerOrderId", Value: providerOrderID}}).Decode(&d)
	if err != nil {
		return nil, translate(err)
	}
	return d.toDomain()
}

func (s *Store) TransitionOrder(ctx context.Context, providerOrderID string, from, to domain.OrderStatus, paymentID string, at time.Time) (bool, error) {
	filter := bson.D{
		{Key: "providerOrderId", Value: providerOrderID},
		{Key: "status", Value: string(from)},
	}
	set := bson.D{
		{Key: "status", Value: string(to)},
		{Key: "updatedAt", Value: at},
	}
	update := bson.D{}
	switch to {
	case domain.OrderStatusPaid:
		set = append(set, bson.E{Key: "paymentId", Value: paymentID}, bson.E{Key: "paidAt", Value: at})
	case domain.OrderStatusCreated:
		set = append(set, bson.E{Key: "paymentId", Value: ""})
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "paidAt", Value: ""}}})
	}
	update = append(update, bson.E{Key: "$set", Value: set})

	res, err := s.db.Collection(colOrders).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, s.exists(ctx, colOrders, bson.D{{Key: "providerOrderId", Value: providerOrderID}})
}

// =============================================================================
// Settings
// =============================================================================

type settingsDoc struct {
	ID              string `bson:"_id"`
	domain.Settings `bson:",inline"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var d settingsDoc
	err := s.db.Collection(colSettings).FindOne(ctx, bson.D{{Key: "_id", Value: settingsID}}).Decode(&d)
	if err != nil {
		return domain.Settings{}, translate(err)
	}
	return d.Settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, st domain.Settings) error {
	_, err := s.db.Collection(colSettings).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: settingsID}},
		settingsDoc{ID: settingsID, Settings: st, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true))
	return translate(err)
}
