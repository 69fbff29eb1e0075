package main

import (
	"strconv"
	"time"

	"github.com/unkn0wn-root/adsync/orders"
)

func orderRows(list []*orders.Order) [][]string {
	rows := make([][]string, 0, len(list))
	for _, o := range list {
		rows = append(rows, []string{
			o.ID,
			o.ProductName,
			string(o.Status),
			strconv.Itoa(o.ScriptLength),
			formatTime(o.CreatedAt),
			o.VideoURL,
		})
	}
	return rows
}

var orderHeaders = []string{"ID", "Product", "Status", "Words", "Created", "Video"}

func orderDetailRows(o *orders.Order) [][]string {
	return [][]string{
		{"ID", o.ID},
		{"Product", o.ProductName},
		{"Description", o.Description},
		{"Status", string(o.Status)},
		{"Avatar", o.AvatarID},
		{"Voice", o.VoiceID},
		{"Language", o.ScriptLanguage},
		{"Words", strconv.Itoa(o.ScriptLength)},
		{"Emotion", o.Emotion},
		{"Images", strconv.Itoa(len(o.Images))},
		{"Retries", strconv.Itoa(o.RetryCount) + "/" + strconv.Itoa(o.RetryLimit)},
		{"Video", o.VideoURL},
		{"Thumbnail", o.ThumbnailURL},
		{"Created", formatTime(o.CreatedAt)},
	}
}

func productRows(list []*orders.Product) [][]string {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{p.ID, p.Name, p.Script})
	}
	return rows
}

func avatarRows(list []orders.Avatar) [][]string {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{a.ID, a.Name, a.Gender, a.Preview})
	}
	return rows
}

func voiceRows(list []orders.Voice) [][]string {
	rows := make([][]string, 0, len(list))
	for _, v := range list {
		rows = append(rows, []string{v.ID, v.Name, v.Gender, v.Language})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
