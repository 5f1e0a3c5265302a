// Package inmemdb keeps every repository in process memory. It backs local development and the test suites.
package inmemdb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/contact"
	"github.com/klunity/klunity/core/message"
	"github.com/klunity/klunity/core/moderation"
	"github.com/klunity/klunity/core/newsletter"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/story"
	"github.com/klunity/klunity/core/user"
)

type (
	DB struct {
		txMu sync.Mutex
		seq  int64
		seqM sync.Mutex

		user         *userTable
		social       *socialTable
		notification *notificationTable
		message      *messageTable
		story        *storyTable
		moderation   *moderationTable
		contact      *contactTable
		newsletter   *newsletterTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*userRow
		otps  map[string]user.OTP // {userID|purpose: OTP}
	}
	userRow struct {
		usr user.User
		seq int64
	}

	socialTable struct {
		mutex    sync.RWMutex
		requests map[string]requestRow // {requesterID|targetID: row}
		follows  map[string]followRow  // {followerID|followeeID: row}
	}
	requestRow struct {
		req social.FollowRequest
		seq int64
	}
	followRow struct {
		follow social.Follow
		seq    int64
	}

	notificationTable struct {
		mutex sync.RWMutex
		rows  []notification.Notification // insertion order
	}

	messageTable struct {
		mutex sync.RWMutex
		rows  []message.Message // insertion order
	}

	storyTable struct {
		mutex     sync.RWMutex
		table     map[string]*storyRow
		reactions map[string][]string // {storyID: userIDs}
		comments  map[string][]story.Comment
	}
	storyRow struct {
		story story.Story
		seq   int64
	}

	moderationTable struct {
		mutex sync.RWMutex
		rows  []moderation.Word
	}

	contactTable struct {
		mutex sync.RWMutex
		rows  []contact.Message // insertion order
	}

	newsletterTable struct {
		mutex sync.RWMutex
		table map[string]newsletter.Subscription // {email: subscription}
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*userRow), otps: make(map[string]user.OTP)},
		social:       &socialTable{requests: make(map[string]requestRow), follows: make(map[string]followRow)},
		notification: &notificationTable{},
		message:      &messageTable{},
		story: &storyTable{
			table:     make(map[string]*storyRow),
			reactions: make(map[string][]string),
			comments:  make(map[string][]story.Comment),
		},
		moderation: &moderationTable{},
		contact:    &contactTable{},
		newsletter: &newsletterTable{table: make(map[string]newsletter.Subscription)},
	}
}

// InTx serializes fn against other transactions. Writes are not rolled back when fn fails.
func (db *DB) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return fn(nil)
}

func (db *DB) nextSeq() int64 {
	db.seqM.Lock()
	defer db.seqM.Unlock()
	db.seq++
	return db.seq
}

func pairKey(a, b string) string {
	return a + "|" + b
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

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
