package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

// resolveKeys selects the reporting keys for a request.
func (o *Orchestrator) resolveKeys(ctx context.Context, req models.ReportRequest, doc models.ServiceSettings) ([]string, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = o.cfg.DefaultLimit
	}

	switch req.Mode {
	case models.ModeApplications:
		return o.topApplications(ctx, req.Filter, limit)
	case models.ModeDeployments:
		return o.recentDeployments(ctx, req.Filter, limit)
	case models.ModeTiers:
		return o.topTiers(ctx, req.Filter, doc.KeyTiers, limit)
	default:
		if keys := uniqueNonBlank(req.Keys); len(keys) > 0 {
			return keys, nil
		}
		if models.Restricted(req.Filter.Applications) {
			return uniqueNonBlank(req.Filter.Applications), nil
		}
		return o.topApplications(ctx, req.Filter, limit)
	}
}

func (o *Orchestrator) topApplications(ctx context.Context, f models.QueryFilter, limit int) ([]string, error) {
	events, err := o.data.events(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("rank applications: %w", err)
	}
	volumes := make(map[string]int64)
	for _, e := range events {
		if strings.TrimSpace(e.Application) == "" {
			continue
		}
		volumes[e.Application] += e.Hits
	}
	return rankByVolume(volumes, nil, limit), nil
}

func (o *Orchestrator) recentDeployments(ctx context.Context, f models.QueryFilter, limit int) ([]string, error) {
	deployments, err := o.backend.ListDeployments(ctx, f.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	var allowed map[string]struct{}
	if models.Restricted(f.Deployments) {
		allowed = make(map[string]struct{}, len(f.Deployments))
		for _, d := range f.Deployments {
			allowed[strings.TrimSpace(d)] = struct{}{}
		}
	}

	names := make([]string, 0, len(deployments))
	for _, d := range deployments {
		if allowed != nil {
			if _, ok := allowed[d.Name]; !ok {
				continue
			}
		}
		names = append(names, d.Name)
	}
	names = uniqueNonBlank(names)
	SortDeployments(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (o *Orchestrator) topTiers(ctx context.Context, f models.QueryFilter, keyTiers []string, limit int) ([]string, error) {
	events, err := o.data.events(ctx, f)
	if err != nil && !utils.IsNoData(err) {
		return nil, fmt.Errorf("rank tiers: %w", err)
	}
	volumes := make(map[string]int64)
	for _, e := range events {
		for _, tier := range e.Tiers {
			if strings.TrimSpace(tier) == "" {
				continue
			}
			volumes[tier] += e.Hits
		}
	}
	return rankByVolume(volumes, uniqueNonBlank(keyTiers), limit), nil
}

// rankByVolume returns the preferred names first, then the remaining names by descending volume
// (ties by name), stopping at limit.
func rankByVolume(volumes map[string]int64, preferred []string, limit int) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(preferred))
	for _, name := range preferred {
		if len(out) == limit {
			return out
		}
		out = append(out, name)
		seen[name] = struct{}{}
	}

	ranked := make([]string, 0, len(volumes))
	for name := range volumes {
		if _, ok := seen[name]; !ok {
			ranked = append(ranked, name)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if volumes[ranked[i]] != volumes[ranked[j]] {
			return volumes[ranked[i]] > volumes[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	for _, name := range ranked {
		if len(out) == limit {
			break
		}
		out = append(out, name)
	}
	return out
}

func uniqueNonBlank(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, models.AllValues) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
