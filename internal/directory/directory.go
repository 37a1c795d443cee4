// Package directory resolves courses and users for enrichment, with a
// cache-aside layer and request coalescing in front of the repositories.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"tutorhub/internal/cache"
	pkglog "tutorhub/internal/log"
	"tutorhub/internal/models"
	"tutorhub/internal/repositories"
)

// Lookup is what the hub services consume.
type Lookup interface {
	Course(ctx context.Context, courseID string) (models.Course, error)
	User(ctx context.Context, userID string) (models.User, error)
	Invalidate(ctx context.Context, courseIDs ...string) error
}

type Directory struct {
	courses repositories.CourseRepository
	users   repositories.UserRepository
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
}

func New(courses repositories.CourseRepository, users repositories.UserRepository, c cache.Cache, ttl time.Duration) *Directory {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &Directory{courses: courses, users: users, cache: c, ttl: ttl}
}

// Course returns the course, or repositories.ErrCourseNotFound.
func (d *Directory) Course(ctx context.Context, courseID string) (models.Course, error) {
	return resolve(ctx, d, "course:"+courseID, func(ctx context.Context) (models.Course, error) {
		return d.courses.GetCourse(ctx, courseID)
	})
}

// User returns the user, or repositories.ErrUserNotFound.
func (d *Directory) User(ctx context.Context, userID string) (models.User, error) {
	return resolve(ctx, d, "user:"+userID, func(ctx context.Context) (models.User, error) {
		return d.users.GetUser(ctx, userID)
	})
}

// Invalidate drops cached entries, e.g. after an enrollment change.
func (d *Directory) Invalidate(ctx context.Context, courseIDs ...string) error {
	keys := make([]string, len(courseIDs))
	for i, id := range courseIDs {
		keys[i] = "course:" + id
	}
	return d.cache.Delete(ctx, keys...)
}

func resolve[T any](ctx context.Context, d *Directory, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	l := pkglog.Ctx(ctx)

	if data, err := d.cache.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		l.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}

	// shared callers must not inherit the first caller's cancellation
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := d.group.Do(key, func() (any, error) {
		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(loaded); err == nil {
			if err := d.cache.Set(loadCtx, key, data, d.ttl); err != nil {
				l.Warn().Err(err).Str("key", key).Msg("cache set failed")
			}
		}
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
