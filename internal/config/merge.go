package config

// deepMerge recursively merges src into dst (src wins on conflicts) and
// returns dst. Nested maps are merged key by key; any other value type in
// src simply replaces the one in dst. This is what gives workflow.states
// its "override one state's color or add a transition" semantics (spec
// §4.9): a project layer's states map only needs to carry the keys it
// actually changes.
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for k, sv := range src {
		if dv, ok := dst[k]; ok {
			dvMap, dvIsMap := dv.(map[string]interface{})
			svMap, svIsMap := sv.(map[string]interface{})
			if dvIsMap && svIsMap {
				dst[k] = deepMerge(dvMap, svMap)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

// mergeRoles applies spec §4.9's roles semantics: a bare `false` for a role
// key disables that role outright; otherwise the role's per-level keys
// (models, levelMaxWorkers, …) are shallow-merged, one level deep, with the
// base role definition. Shallow here means a role key present in src wins
// wholesale — src's "models" map is not itself merged against dst's
// "models" map — which is what lets a project replace a level's model
// without needing to restate levelMaxWorkers too.
func mergeRoles(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for role, sv := range src {
		if disabled, ok := sv.(bool); ok && !disabled {
			dst[role] = false
			continue
		}
		svMap, svIsMap := sv.(map[string]interface{})
		if !svIsMap {
			dst[role] = sv
			continue
		}
		dvMap, _ := dst[role].(map[string]interface{})
		if dvMap == nil {
			dvMap = map[string]interface{}{}
		}
		merged := map[string]interface{}{}
		for k, v := range dvMap {
			merged[k] = v
		}
		for k, v := range svMap {
			merged[k] = v
		}
		dst[role] = merged
	}
	return dst
}

// mergeLayer merges one overlay layer onto an accumulated base, applying
// the roles/workflow.states special cases and a generic deep merge for
// everything else.
func mergeLayer(base, overlay map[string]interface{}) map[string]interface{} {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = map[string]interface{}{}
	}

	if rolesOverlay, ok := asMap(overlay["roles"]); ok {
		base["roles"] = mergeRoles(toMap(base["roles"]), rolesOverlay)
	}

	if wfOverlay, ok := asMap(overlay["workflow"]); ok {
		wfBase := toMap(base["workflow"])
		if statesOverlay, ok := asMap(wfOverlay["states"]); ok {
			statesBase := toMap(wfBase["states"])
			wfBase["states"] = deepMerge(statesBase, statesOverlay)
			delete(wfOverlay, "states")
		}
		base["workflow"] = deepMerge(wfBase, wfOverlay)
	}

	for k, v := range overlay {
		if k == "roles" || k == "workflow" {
			continue
		}
		if bv, ok := asMap(base[k]); ok {
			if sv, ok := asMap(v); ok {
				base[k] = deepMerge(bv, sv)
				continue
			}
		}
		base[k] = v
	}
	return base
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func toMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}
