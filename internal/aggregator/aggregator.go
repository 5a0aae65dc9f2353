package aggregator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"call-compass-go/internal/types"
)

// Impact buckets for tag counts.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

type DayBucket struct {
	Name         string `json:"name"`
	Successful   int    `json:"successful"`
	Unsuccessful int    `json:"unsuccessful"`
	Attention    int    `json:"attention"`
}

type TagCount struct {
	Tag    string `json:"tag"`
	Count  int    `json:"count"`
	Impact string `json:"impact"`
}

type FilterOptions struct {
	Operators []string `json:"operators"`
	Statuses  []string `json:"statuses"`
	Tags      []string `json:"tags"`
}

// Dashboard is the projection the dashboard view renders.
type Dashboard struct {
	Total           int                `json:"total"`
	Successful      int                `json:"successful"`
	Unsuccessful    int                `json:"unsuccessful"`
	Attention       int                `json:"attention"`
	SuccessRate     int                `json:"success_rate"`
	UnsuccessRate   int                `json:"unsuccess_rate"`
	AvgDurationSec  int                `json:"avg_duration_sec"`
	AvgDuration     string             `json:"avg_duration"`
	Weekdays        []DayBucket        `json:"weekdays"`
	ProblemTags     []TagCount         `json:"problem_tags"`
	SuccessTags     []TagCount         `json:"success_tags"`
	Recent          []string           `json:"recent"`
	KeyInsights     []string           `json:"key_insights"`
	Recommendations []string           `json:"recommendations"`
	Comparison      []string           `json:"comparison"`
	Filters         FilterOptions      `json:"filters"`
	Analyzed        int                `json:"analyzed"`
	ByAgent         map[string]int     `json:"by_agent"`
	AvgScoreByAgent map[string]float64 `json:"avg_score_by_agent"`
}

type outcome int

const (
	outcomeAttention outcome = iota
	outcomeSuccessful
	outcomeUnsuccessful
)

// classify looks at both callResult and status; success is checked first.
func classify(c types.CallRecord) outcome {
	switch {
	case c.CallResult == types.ResultSuccessful || c.Status == types.ResultSuccessful:
		return outcomeSuccessful
	case c.CallResult == types.ResultUnsuccessful || c.Status == types.ResultUnsuccessful:
		return outcomeUnsuccessful
	}
	return outcomeAttention
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Пн",
	time.Tuesday:   "Вт",
	time.Wednesday: "Ср",
	time.Thursday:  "Чт",
	time.Friday:    "Пт",
}

// Aggregate derives the dashboard from a call set.
func Aggregate(calls []types.CallRecord) Dashboard {
	d := Dashboard{
		Total:           len(calls),
		Weekdays:        make([]DayBucket, 0, 5),
		ProblemTags:     []TagCount{},
		SuccessTags:     []TagCount{},
		Recent:          []string{},
		KeyInsights:     []string{},
		Recommendations: []string{},
		Comparison:      []string{},
		ByAgent:         map[string]int{},
		AvgScoreByAgent: map[string]float64{},
	}
	days := map[time.Weekday]*DayBucket{}
	for _, wd := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		d.Weekdays = append(d.Weekdays, DayBucket{Name: weekdayNames[wd]})
		days[wd] = &d.Weekdays[len(d.Weekdays)-1]
	}

	problems := newCounter()
	successes := newCounter()
	insights := newSet()
	recs := newSet()
	scoreSum := map[string]float64{}
	scoreN := map[string]int{}

	totalSec, withDuration := 0, 0
	for _, c := range calls {
		o := classify(c)
		switch o {
		case outcomeSuccessful:
			d.Successful++
			successes.add(c.Tags)
		case outcomeUnsuccessful:
			d.Unsuccessful++
			problems.add(c.Tags)
		default:
			d.Attention++
		}

		if c.Duration != "" {
			withDuration++
			totalSec += ParseDuration(c.Duration)
		}
		if t, ok := ParseDate(c.Date); ok {
			if b := days[t.Weekday()]; b != nil {
				switch o {
				case outcomeSuccessful:
					b.Successful++
				case outcomeUnsuccessful:
					b.Unsuccessful++
				default:
					b.Attention++
				}
			}
		}

		insights.add(c.KeyInsight)
		recs.add(c.Recommendation)
		if c.Analyzed() {
			d.Analyzed++
		}
		if c.Agent != "" {
			d.ByAgent[c.Agent]++
			if c.Score != nil {
				scoreSum[c.Agent] += *c.Score
				scoreN[c.Agent]++
			}
		}
	}

	if d.Total > 0 {
		d.SuccessRate = percent(d.Successful, d.Total)
		d.UnsuccessRate = percent(d.Unsuccessful, d.Total)
	}
	if withDuration > 0 {
		d.AvgDurationSec = totalSec / withDuration
	}
	d.AvgDuration = fmt.Sprintf("%dм %dс", d.AvgDurationSec/60, d.AvgDurationSec%60)
	d.ProblemTags = problems.top(5)
	d.SuccessTags = successes.top(5)
	d.KeyInsights = insights.items
	d.Recommendations = recs.items
	d.Recent = recent(calls, 5)
	d.Comparison = ComparisonPick(calls)
	d.Filters = Options(calls)
	for a, n := range scoreN {
		d.AvgScoreByAgent[a] = math.Round(scoreSum[a]/float64(n)*10) / 10
	}
	return d
}

func percent(n, total int) int {
	return int(math.Round(float64(n) / float64(total) * 100))
}

// Impact buckets a tag count: more than 10 is high, more than 5 medium.
func Impact(count int) string {
	switch {
	case count > 10:
		return ImpactHigh
	case count > 5:
		return ImpactMedium
	}
	return ImpactLow
}

var (
	durRu    = regexp.MustCompile(`(\d+)м\s*(\d*)с?`)
	durClock = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d{1,2})$`)
)

// ParseDuration reads "3м 45с" or "mm:ss" / "hh:mm:ss" into seconds. Unknown formats count as zero.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if m := durRu.FindStringSubmatch(s); m != nil {
		mins, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		return mins*60 + sec
	}
	if m := durClock.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		return h*3600 + mins*60 + sec
	}
	return 0
}

// ParseDate reads dd.mm.yyyy.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse("02.01.2006", strings.TrimSpace(s))
	if err != nil {
		t, err = time.Parse("2.1.2006", strings.TrimSpace(s))
	}
	return t, err == nil
}

// ComparisonPick returns the first three analyzed call ids, or nothing when fewer than two
// calls are analyzed.
func ComparisonPick(calls []types.CallRecord) []string {
	out := []string{}
	for _, c := range calls {
		if c.Analyzed() {
			out = append(out, c.ID)
			if len(out) == 3 {
				break
			}
		}
	}
	if len(out) < 2 {
		return []string{}
	}
	return out
}

// Options lists the sorted distinct operators, statuses and tags.
func Options(calls []types.CallRecord) FilterOptions {
	ops, sts, tags := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for _, c := range calls {
		if c.Agent != "" {
			ops[c.Agent] = struct{}{}
		}
		if s := c.Outcome(); s != "" {
			sts[s] = struct{}{}
		}
		for _, t := range c.Tags {
			tags[t] = struct{}{}
		}
	}
	return FilterOptions{Operators: sortedKeys(ops), Statuses: sortedKeys(sts), Tags: sortedKeys(tags)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// recent returns the ids of the n latest calls by date and time. Undated calls go last.
func recent(calls []types.CallRecord, n int) []string {
	type dated struct {
		id string
		at time.Time
		ok bool
	}
	list := make([]dated, 0, len(calls))
	for _, c := range calls {
		t, ok := ParseDate(c.Date)
		if ok {
			if hm, err := time.Parse("15:04", strings.TrimSpace(c.Time)); err == nil {
				t = t.Add(time.Duration(hm.Hour())*time.Hour + time.Duration(hm.Minute())*time.Minute)
			}
		}
		list = append(list, dated{id: c.ID, at: t, ok: ok})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].ok != list[j].ok {
			return list[i].ok
		}
		return list[i].at.After(list[j].at)
	})
	out := []string{}
	for i := 0; i < len(list) && i < n; i++ {
		out = append(out, list[i].id)
	}
	return out
}

type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter { return &counter{counts: map[string]int{}} }

func (c *counter) add(tags []string) {
	for _, t := range tags {
		if _, ok := c.counts[t]; !ok {
			c.order = append(c.order, t)
		}
		c.counts[t]++
	}
}

// top returns the n most frequent tags; ties keep first-seen order.
func (c *counter) top(n int) []TagCount {
	out := make([]TagCount, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, TagCount{Tag: t, Count: c.counts[t], Impact: Impact(c.counts[t])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type set struct {
	seen  map[string]struct{}
	items []string
}

func newSet() *set { return &set{seen: map[string]struct{}{}, items: []string{}} }

func (s *set) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
