// Package identity computes the stable identity key and id for a feed item.
package identity

import (
	"errors"
	"strings"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
	"github.com/JakeFAU/realtime-feeds/internal/hash/sha256"
	"github.com/JakeFAU/realtime-feeds/internal/textnorm"
	"github.com/JakeFAU/realtime-feeds/internal/urlcanon"
)

// ErrNoIdentity means the item has no usable link, URL-like guid, or title.
var ErrNoIdentity = errors.New("item has no link, url guid, or title")

// Basis names which item field produced the identity key.
type Basis string

// Identity key sources in priority order.
const (
	BasisLink  Basis = "link"
	BasisGUID  Basis = "guid"
	BasisTitle Basis = "title"
)

// Identity is the resolved identity of one item.
type Identity struct {
	Key   string
	Basis Basis
	// Link is the canonical link to store. Title-keyed items fall back to the
	// source's own URL so every post remains linkable.
	Link string
	ID   string
}

// Resolver derives identities using a deterministic hasher.
type Resolver struct {
	hasher feeds.Hasher
}

// NewResolver builds a Resolver. A nil hasher uses sha256.New().
func NewResolver(hasher feeds.Hasher) *Resolver {
	if hasher == nil {
		hasher = sha256.New()
	}
	return &Resolver{hasher: hasher}
}

// Resolve computes the identity of item for source. base is used to resolve
// relative links (normally the feed's own link, else the source URL).
func (r *Resolver) Resolve(source feeds.Source, item feeds.RawItem, base string) (Identity, error) {
	if base == "" {
		base = source.URL
	}
	id := Identity{}
	if link, err := urlcanon.Canonicalize(item.Link, base); err == nil {
		id.Key, id.Basis, id.Link = link, BasisLink, link
	} else if urlcanon.LooksLikeURL(item.GUID) {
		if guid, err := urlcanon.Canonicalize(item.GUID, ""); err == nil {
			id.Key, id.Basis, id.Link = guid, BasisGUID, guid
		}
	}
	if id.Key == "" {
		title := textnorm.CollapseSpace(textnorm.DecodeEntities(item.Title))
		if title == "" {
			return Identity{}, ErrNoIdentity
		}
		id.Key, id.Basis = title, BasisTitle
		if fallback, err := urlcanon.Canonicalize(source.URL, ""); err == nil {
			id.Link = fallback
		}
	}
	id.ID = r.ID(source.ID, id.Key)
	return id, nil
}

// ID returns the post id for a source and identity key. The same inputs
// always produce the same id, so no id mapping needs to be persisted.
func (r *Resolver) ID(sourceID, key string) string {
	return r.hasher.HashParts(strings.TrimSpace(sourceID), key)
}
