// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import "strings"

// MergeConfig selects how list fields are merged, by field name. A field
// missing from the config is replaced by the overriding value.
//
//	MergeConfig{"headers": MergeAppend, "files": "key:name"}
type MergeConfig map[string]string

// MergeAppend concatenates the base list and the overriding list.
const MergeAppend = "append"

// MergeMaps returns base overlaid with override. Nested maps are merged
// recursively and lists follow cfg. Neither input is modified.
func MergeMaps(base, override map[string]interface{}, cfg MergeConfig) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v2 := range override {
		v1, exists := result[k]
		if !exists {
			result[k] = v2
			continue
		}
		m1, ok1 := v1.(map[string]interface{})
		m2, ok2 := v2.(map[string]interface{})
		if ok1 && ok2 {
			result[k] = MergeMaps(m1, m2, cfg)
			continue
		}
		l1, ok1 := v1.([]interface{})
		l2, ok2 := v2.([]interface{})
		if ok1 && ok2 {
			result[k] = mergeLists(l1, l2, cfg[k], cfg)
			continue
		}
		result[k] = v2
	}
	return result
}

func mergeLists(base, override []interface{}, strategy string, cfg MergeConfig) []interface{} {
	switch {
	case strategy == MergeAppend:
		out := make([]interface{}, 0, len(base)+len(override))
		out = append(out, base...)
		return append(out, override...)
	case strings.HasPrefix(strategy, "key:"):
		if key := strings.TrimPrefix(strategy, "key:"); allMaps(base) && allMaps(override) {
			return mergeByKey(base, override, key, cfg)
		}
	}
	return override
}

// mergeByKey merges lists of maps matching items on key. Items keep the
// order of base, new items follow in the order of override.
func mergeByKey(base, override []interface{}, key string, cfg MergeConfig) []interface{} {
	out := make([]interface{}, 0, len(base)+len(override))
	pos := map[interface{}]int{}
	for _, item := range base {
		m := item.(map[string]interface{})
		if id, ok := m[key]; ok {
			pos[id] = len(out)
		}
		out = append(out, m)
	}
	for _, item := range override {
		m := item.(map[string]interface{})
		id, ok := m[key]
		if i, found := pos[id]; ok && found {
			out[i] = MergeMaps(out[i].(map[string]interface{}), m, cfg)
			continue
		}
		if ok {
			pos[id] = len(out)
		}
		out = append(out, m)
	}
	return out
}

func allMaps(list []interface{}) bool {
	for _, item := range list {
		if _, ok := item.(map[string]interface{}); !ok {
			return false
		}
	}
	return true
}
