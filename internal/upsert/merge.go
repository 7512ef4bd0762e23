// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package upsert

import "strings"

// MergeValue adds value to the comma-separated history in prior.
//
//	MergeValue("", "Yoga")            == "Yoga"
//	MergeValue("Yoga", "Pilates")     == "Yoga, Pilates"
//	MergeValue("Yoga, Pilates", "Yoga") == "Yoga, Pilates"
//
// Membership is an exact match against the trimmed items of prior, so
// merging the same value twice leaves prior unchanged.
func MergeValue(prior, value string) string {
	if prior == "" {
		return value
	}
	if containsItem(prior, value) {
		return prior
	}
	return prior + ", " + value
}

func containsItem(list, value string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == value {
			return true
		}
	}
	return false
}
