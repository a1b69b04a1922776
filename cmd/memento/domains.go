package main

import "memento/internal/prefs"

// defaultDomainRules seeds the domain-rule store on first run. Users can
// override any of these via PUT /api/domain-rules/:host.
var defaultDomainRules = map[string]prefs.DomainRule{
	"news.ycombinator.com": {Signal: prefs.SignalContextual, Reason: "depends on the thread"},
	"twitter.com":          {Signal: prefs.SignalNoise, Reason: "feed scrolling"},
	"x.com":                {Signal: prefs.SignalNoise, Reason: "feed scrolling"},
	"reddit.com":           {Signal: prefs.SignalContextual, Reason: "subreddit dependent"},
	"www.reddit.com":       {Signal: prefs.SignalContextual, Reason: "subreddit dependent"},
	"youtube.com":          {Signal: prefs.SignalContextual, Reason: "tutorials vs entertainment"},
	"www.youtube.com":      {Signal: prefs.SignalContextual, Reason: "tutorials vs entertainment"},
	"arxiv.org":            {Signal: prefs.SignalAlwaysInteresting, Reason: "academic preprints"},
	"scholar.google.com":   {Signal: prefs.SignalAlwaysInteresting, Reason: "academic search"},
	"github.com":           {Signal: prefs.SignalAlwaysInteresting, Reason: "code and issues"},
	"docs.google.com":      {Signal: prefs.SignalAlwaysInteresting, Reason: "working documents"},
	"mail.google.com":      {Signal: prefs.SignalContextual, Reason: "inbox"},
	"facebook.com":         {Signal: prefs.SignalNoise, Reason: "feed scrolling"},
	"instagram.com":        {Signal: prefs.SignalNoise, Reason: "feed scrolling"},
}
