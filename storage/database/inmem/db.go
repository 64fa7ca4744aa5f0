package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
)

type (
	// DB is an in-memory store for every repository. A single lock guards all tables
	// so that writes spanning several tables stay consistent.
	DB struct {
		sync.RWMutex

		users         map[string]user.User
		projects      map[string]project.Project
		applications  map[string]project.Application
		discussions   map[string]discussion.Discussion
		answers       map[string]discussion.Answer
		votes         map[voteKey]int
		webinars      map[string]webinar.Webinar
		posts         map[string]blog.Post
		notifications map[string]notification.Notification
	}

	voteKey struct {
		userID, targetType, targetID string
	}
)

func Open() (*DB, error) {
	db := &DB{
		users:         make(map[string]user.User),
		projects:      make(map[string]project.Project),
		applications:  make(map[string]project.Application),
		discussions:   make(map[string]discussion.Discussion),
		answers:       make(map[string]discussion.Answer),
		votes:         make(map[voteKey]int),
		webinars:      make(map[string]webinar.Webinar),
		posts:         make(map[string]blog.Post),
		notifications: make(map[string]notification.Notification),
	}
	return db, nil
}

func newID() string {
	return uuid.New().String()
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	cp := make([]string, len(ss))
	copy(cp, ss)
	return cp
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortByOrderings sorts n items following the orderings. compare returns a negative number
// when item i comes before item j on `field` in ascending order, a positive one after, 0 when equal.
func sortByOrderings(items interface{}, orderings []core.DBOrdering, compare func(field string, i, j int) int) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range orderings {
			c := compare(ord.Field, i, j)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
