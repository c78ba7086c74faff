package game

import "time"

// TotalDailyIncome sums the daily income of every character the player owns.
func (c *Catalog) TotalDailyIncome(p PlayerRecord) float64 {
	var total float64
	for _, owned := range p.Characters {
		total += c.DailyIncome(owned.ID, owned.Level)
	}
	return total
}

// Accrue credits the income earned since the last accrual and moves the
// accrual timestamp to now. It returns the amount credited. A missing
// timestamp or a clock that went backwards credits nothing, and the
// timestamp never moves backwards.
func Accrue(p *PlayerRecord, c *Catalog, now time.Time) float64 {
	nowMs := now.UnixMilli()
	if p.LastUpdate <= 0 {
		p.LastUpdate = nowMs
		return 0
	}
	if nowMs <= p.LastUpdate {
		return 0
	}
	elapsed := float64(nowMs-p.LastUpdate) / 1000
	earned := PerSecond(c.TotalDailyIncome(*p)) * elapsed
	p.Balance += earned
	p.LastUpdate = nowMs
	return earned
}
