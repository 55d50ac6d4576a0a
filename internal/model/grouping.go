// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"
)

// Date bucket labels, in display order.
const (
	BucketToday     = "Today"
	BucketYesterday = "Yesterday"
	BucketLastWeek  = "Previous 7 Days"
	BucketOlder     = "Older Stories"
)

// BucketOrder lists the bucket labels in display order.
var BucketOrder = []string{BucketToday, BucketYesterday, BucketLastWeek, BucketOlder}

// SessionGroup is one dated bucket of session listings.
type SessionGroup struct {
	Label    string        `json:"label"`
	Sessions []SessionMeta `json:"sessions"`
}

// GroupByDate buckets sessions by last-updated time relative to now, in
// now's location. Empty buckets are omitted; within a bucket the most
// recently updated session comes first.
func GroupByDate(sessions []SessionMeta, now time.Time) []SessionGroup {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)

	buckets := make(map[string][]SessionMeta, len(BucketOrder))
	for _, s := range sessions {
		t := s.LastUpdated.In(now.Location())
		var label string
		switch {
		case !t.Before(today):
			label = BucketToday
		case !t.Before(yesterday):
			label = BucketYesterday
		case t.After(weekAgo):
			label = BucketLastWeek
		default:
			label = BucketOlder
		}
		buckets[label] = append(buckets[label], s)
	}

	groups := make([]SessionGroup, 0, len(BucketOrder))
	for _, label := range BucketOrder {
		list := buckets[label]
		if len(list) == 0 {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].LastUpdated.After(list[j].LastUpdated)
		})
		groups = append(groups, SessionGroup{Label: label, Sessions: list})
	}
	return groups
}
