package models

// StatsSummary is the dashboard headline block.
type StatsSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Confirmed  int `json:"confirmed"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Rejected   int `json:"rejected"`
	Weekly     int `json:"weekly"`
	Monthly    int `json:"monthly"`
}

// WeeklyStats breaks down reports by status and category.
type WeeklyStats struct {
	ByStatus   map[ReportStatus]int   `json:"byStatus"`
	ByCategory map[ReportCategory]int `json:"byCategory"`
	Totals     WeeklyTotals           `json:"totals"`
}

type WeeklyTotals struct {
	All       int `json:"all"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// ProfileStats summarises a user's report activity.
type ProfileStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// Profile pairs a user with their activity statistics.
type Profile struct {
	*User
	Statistics ProfileStats `json:"statistics"`
}
