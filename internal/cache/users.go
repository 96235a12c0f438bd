// Package cache holds the best-effort user lookup cache.
package cache

import (
	"slices"
	"time"

	"github.com/and161185/authgate/internal/model"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Users caches user records by id and by email. Entries are copies, so
// callers may mutate what they get back.
type Users struct {
	lru *expirable.LRU[string, model.User]
}

// NewUsers returns a cache holding up to size entries for ttl each.
func NewUsers(size int, ttl time.Duration) *Users {
	if size <= 0 {
		size = 1024
	}
	return &Users{lru: expirable.NewLRU[string, model.User](size, nil, ttl)}
}

// Get returns a cached user for key. A nil cache always misses.
func (c *Users) Get(key string) (*model.User, bool) {
	if c == nil {
		return nil, false
	}
	u, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return clone(u), true
}

// Set stores u under key.
func (c *Users) Set(key string, u *model.User) {
	if c == nil || u == nil {
		return
	}
	c.lru.Add(key, *clone(*u))
}

// SetUser stores u under its id and its email, the two keys InvalidateUser
// removes.
func (c *Users) SetUser(u *model.User) {
	if u == nil {
		return
	}
	c.Set(u.ID.String(), u)
	c.Set(u.Email, u)
}

// Invalidate drops every given key.
func (c *Users) Invalidate(keys ...string) {
	if c == nil {
		return
	}
	for _, k := range keys {
		if k != "" {
			c.lru.Remove(k)
		}
	}
}

// InvalidateUser drops the id and email keys of u.
func (c *Users) InvalidateUser(u *model.User) {
	if u == nil {
		return
	}
	c.Invalidate(u.ID.String(), u.Email)
}

func clone(u model.User) *model.User {
	u.Roles = slices.Clone(u.Roles)
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		u.PasswordHash = &h
	}
	return &u
}
