package model

import "time"

// AnalyticsSummary is every statistical view of one project, computed from a
// single event snapshot.
type AnalyticsSummary struct {
	ProjectID    string           `json:"projectId"`
	DateRange    *DateRange       `json:"dateRange,omitempty"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	Overview     Overview         `json:"overview"`
	Traffic      Traffic          `json:"traffic"`
	Demographics Demographics     `json:"demographics"`
	Behavior     Behavior         `json:"behavior"`
	Performance  PerformanceStats `json:"performance"`
	Conversions  ConversionStats  `json:"conversions"`
	RealTime     RealTime         `json:"realTime"`
}

// Overview holds headline figures. Rates are percentages.
type Overview struct {
	TotalVisitors          int     `json:"totalVisitors"`
	UniqueVisitors         int     `json:"uniqueVisitors"`
	TotalPageViews         int     `json:"totalPageViews"`
	AverageSessionDuration float64 `json:"averageSessionDuration"`
	BounceRate             float64 `json:"bounceRate"`
	ConversionRate         float64 `json:"conversionRate"`
}

// Traffic groups page views by time bucket.
type Traffic struct {
	Hourly  []HourlyBucket `json:"hourly"`
	Daily   []PeriodBucket `json:"daily"`
	Weekly  []PeriodBucket `json:"weekly"`
	Monthly []PeriodBucket `json:"monthly"`
}

// HourlyBucket aggregates page views by hour of day, 0-23.
type HourlyBucket struct {
	Hour     int `json:"hour"`
	Views    int `json:"views"`
	Visitors int `json:"visitors"`
}

// PeriodBucket aggregates page views for one day, week or month.
type PeriodBucket struct {
	Period   string `json:"period"`
	Views    int    `json:"views"`
	Visitors int    `json:"visitors"`
}

// Breakdown is one row of a grouped count with its rounded percentage.
type Breakdown struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// Demographics breaks sessions down by visitor attributes.
type Demographics struct {
	Countries        []Breakdown `json:"countries"`
	Cities           []Breakdown `json:"cities"`
	Devices          []Breakdown `json:"devices"`
	Browsers         []Breakdown `json:"browsers"`
	OperatingSystems []Breakdown `json:"operatingSystems"`
}

// Behavior holds navigation views.
type Behavior struct {
	TopPages  []PageStat  `json:"topPages"`
	Referrers []Breakdown `json:"referrers"`
	UserFlow  []FlowEdge  `json:"userFlow"`
	ExitPages []ExitPage  `json:"exitPages"`
}

// PageStat is a page with its view count and mean time on page in seconds.
type PageStat struct {
	Page          string  `json:"page"`
	Views         int     `json:"views"`
	AvgTimeOnPage float64 `json:"avgTimeOnPage"`
}

// FlowEdge counts visitors moving from one page to the next within a session.
type FlowEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// ExitPage is a page that ended sessions. ExitRate is exits/views in percent.
type ExitPage struct {
	Page     string `json:"page"`
	Exits    int    `json:"exits"`
	Views    int    `json:"views"`
	ExitRate int    `json:"exitRate"`
}

// PerformanceStats holds the mean of every performance sample field.
type PerformanceStats struct {
	Samples                   int     `json:"samples"`
	AvgLoadTime               float64 `json:"avgLoadTime"`
	AvgFirstContentfulPaint   float64 `json:"avgFirstContentfulPaint"`
	AvgLargestContentfulPaint float64 `json:"avgLargestContentfulPaint"`
	AvgCumulativeLayoutShift  float64 `json:"avgCumulativeLayoutShift"`
	AvgFirstInputDelay        float64 `json:"avgFirstInputDelay"`
	AvgResourceCount          float64 `json:"avgResourceCount"`
	AvgResourceSize           float64 `json:"avgResourceSize"`
	AvgCacheHitRate           float64 `json:"avgCacheHitRate"`
}

// ConversionStats holds conversion totals and the engagement funnel.
type ConversionStats struct {
	Total      int                  `json:"total"`
	TotalValue float64              `json:"totalValue"`
	ByType     []ConversionTypeStat `json:"byType"`
	Funnel     []FunnelStage        `json:"funnel"`
}

// ConversionTypeStat is the count and summed value of one goal type.
type ConversionTypeStat struct {
	Type  string  `json:"type"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// Funnel stage names.
const (
	StageVisitors  = "Visitors"
	StageEngaged   = "Engaged"
	StageConverted = "Converted"
)

// FunnelStage is a milestone count with its rate relative to all visitors.
type FunnelStage struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
	Rate  int    `json:"rate"`
}

// RealTime describes the trailing activity window.
type RealTime struct {
	WindowStart      time.Time     `json:"windowStart"`
	WindowEnd        time.Time     `json:"windowEnd"`
	ActiveVisitors   int           `json:"activeVisitors"`
	CurrentPageViews []PageCount   `json:"currentPageViews"`
	RecentEvents     []RecentEvent `json:"recentEvents"`
}

// PageCount is a page and its view count.
type PageCount struct {
	Page  string `json:"page"`
	Views int    `json:"views"`
}

// Recent event kinds.
const (
	KindPageView    = "pageview"
	KindInteraction = "interaction"
	KindConversion  = "conversion"
)

// RecentEvent is a compact entry of the real-time activity feed.
// Detail carries the page, interaction type or goal type.
type RecentEvent struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
}
