package models

import "time"

// CountPair is a total/active breakdown.
type CountPair struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// DashboardStats is the aggregate view served to the admin dashboard.
type DashboardStats struct {
	Sites          CountPair             `json:"sites"`
	Sources        CountPair             `json:"sources"`
	Articles       map[ArticleStatus]int `json:"articles"`
	TotalArticles  int                   `json:"total_articles"`
	CreatedToday   int                   `json:"created_today"`
	PublishedToday int                   `json:"published_today"`
}

// Activity is a recent article event.
type Activity struct {
	ArticleID string        `json:"article_id"`
	SiteID    string        `json:"site_id"`
	SiteName  string        `json:"site_name"`
	Title     string        `json:"title"`
	Status    ArticleStatus `json:"status"`
	PostURL   string        `json:"post_url,omitempty"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// DailyCount is one point of the created/published time series.
type DailyCount struct {
	Date      string `json:"date"`
	Created   int    `json:"created"`
	Published int    `json:"published"`
}
