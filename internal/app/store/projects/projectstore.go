package projects

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/trackhub/internal/app/system/normalize"
	"github.com/dalemusser/trackhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateProjectName is returned when a project with the same folded name exists.
	ErrDuplicateProjectName = errors.New("a project with this name already exists")
	// ErrProjectNotFound is returned when a lookup matches no project.
	ErrProjectNotFound = errors.New("project not found")
	// ErrDuplicateMembership is returned when the user is already a member.
	ErrDuplicateMembership = errors.New("user is already a member of this project")
	// ErrMembershipNotFound is returned when the user is not a member.
	ErrMembershipNotFound = errors.New("user is not a member of this project")
	// ErrLastAdmin is returned when removing a member would leave the
	// project without any admin.
	ErrLastAdmin = errors.New("cannot remove the last admin of a project")
	errBadRole   = errors.New(`member role must be "admin"|"developer"|"tester"`)
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("projects")}
}

// Create inserts a new project. The creator is seeded as the sole
// admin member, so every project satisfies the at-least-one-admin rule
// from birth.
func (s *Store) Create(ctx context.Context, name, description string, creatorID primitive.ObjectID) (models.Project, error) {
	name = normalize.Name(name)
	now := time.Now().UTC()

	p := models.Project{
		ID:          primitive.NewObjectID(),
		Name:        name,
		NameCI:      text.Fold(name),
		Description: description,
		CreatedBy:   creatorID,
		Members: []models.Membership{
			{
				ID:      primitive.NewObjectID(),
				UserID:  creatorID,
				Role:    models.RoleAdmin,
				AddedAt: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Project{}, ErrDuplicateProjectName
		}
		return models.Project{}, err
	}
	return p, nil
}

// GetByID loads a project by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	var p models.Project
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateInfo updates the project name and description.
func (s *Store) UpdateInfo(ctx context.Context, id primitive.ObjectID, name, description string) (*models.Project, error) {
	name = normalize.Name(name)
	set := bson.M{
		"name":        name,
		"name_ci":     text.Fold(name),
		"description": description,
		"updated_at":  time.Now().UTC(),
	}

	var p models.Project
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProjectNotFound
		}
		if wafflemongo.IsDup(err) {
			return nil, ErrDuplicateProjectName
		}
		return nil, err
	}
	return &p, nil
}

// Delete removes the project document. Bug cleanup is the caller's
// responsibility (see the cascade delete in the projects feature).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ListByMember returns the projects where the user appears in the
// members array, newest first.
func (s *Store) ListByMember(ctx context.Context, userID primitive.ObjectID) ([]models.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.c.Find(ctx, bson.M{"members.user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var list []models.Project
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddMember appends a membership, guarding against duplicates with a
// filtered update so concurrent adds cannot double-insert.
func (s *Store) AddMember(ctx context.Context, projectID, userID primitive.ObjectID, role string) (models.Membership, error) {
	role = normalize.Role(role)
	if !models.ValidProjectRole(role) {
		return models.Membership{}, errBadRole
	}

	m := models.Membership{
		ID:      primitive.NewObjectID(),
		UserID:  userID,
		Role:    role,
		AddedAt: time.Now().UTC(),
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": projectID, "members.user_id": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"members": m},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return models.Membership{}, err
	}
	if res.MatchedCount == 0 {
		// Either the project is gone or the user is already a member.
		if _, err := s.GetByID(ctx, projectID); err != nil {
			return models.Membership{}, err
		}
		return models.Membership{}, ErrDuplicateMembership
	}
	return m, nil
}

// RemoveMember pulls a membership from the project. The filter refuses
// to remove an admin unless another admin remains, so the last-admin
// guard holds even under concurrent removals.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID primitive.ObjectID) error {
	filter := bson.M{
		"_id":             projectID,
		"members.user_id": userID,
		"$or": []bson.M{
			// Target is not an admin: always removable.
			{"members": bson.M{"$elemMatch": bson.M{
				"user_id": userID,
				"role":    bson.M{"$ne": models.RoleAdmin},
			}}},
			// Target is an admin but another admin exists.
			{"members": bson.M{"$elemMatch": bson.M{
				"user_id": bson.M{"$ne": userID},
				"role":    models.RoleAdmin,
			}}},
		},
	}

	res, err := s.c.UpdateOne(ctx, filter, bson.M{
		"$pull": bson.M{"members": bson.M{"user_id": userID}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// The update matched nothing: figure out which rule failed.
	p, err := s.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if _, ok := p.MemberByUserID(userID); !ok {
		return ErrMembershipNotFound
	}
	return ErrLastAdmin
}

// UpdateMemberRole changes an existing member's role. Demoting an
// admin requires another admin to remain, enforced in the filter.
func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID primitive.ObjectID, role string) error {
	role = normalize.Role(role)
	if !models.ValidProjectRole(role) {
		return errBadRole
	}

	filter := bson.M{
		"_id":             projectID,
		"members.user_id": userID,
	}
	if role != models.RoleAdmin {
		filter["$or"] = []bson.M{
			{"members": bson.M{"$elemMatch": bson.M{
				"user_id": userID,
				"role":    bson.M{"$ne": models.RoleAdmin},
			}}},
			{"members": bson.M{"$elemMatch": bson.M{
				"user_id": bson.M{"$ne": userID},
				"role":    models.RoleAdmin,
			}}},
		}
	}

	res, err := s.c.UpdateOne(ctx, filter,
		bson.M{
			"$set": bson.M{
				"members.$[m].role": role,
				"updated_at":        time.Now().UTC(),
			},
		},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"m.user_id": userID}},
		}))
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	p, err := s.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if _, ok := p.MemberByUserID(userID); !ok {
		return ErrMembershipNotFound
	}
	return ErrLastAdmin
}
