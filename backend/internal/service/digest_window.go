package service

import (
	"strings"
	"time"

	"zimpharmhub/backend/internal/model"
)

// ShouldSendDigest 判断当前时刻是否落在提醒的摘要发送窗口内
//
//   - daily：当前时间与 digest_time 相差不超过 window
//   - weekly：另需当天星期与 digest_day 一致
//
// now 应已转换到提醒时区；按当日分钟数比较，不跨越午夜。
func ShouldSendDigest(alert *model.JobAlert, now time.Time, window time.Duration) bool {
	switch alert.Frequency {
	case model.FrequencyDaily:
		return withinDigestWindow(alert.DigestTime, now, window)
	case model.FrequencyWeekly:
		if !strings.EqualFold(now.Weekday().String(), alert.DigestDay) {
			return false
		}
		return withinDigestWindow(alert.DigestTime, now, window)
	default:
		return false
	}
}

func withinDigestWindow(digestTime string, now time.Time, window time.Duration) bool {
	target, ok := parseHHMM(digestTime)
	if !ok {
		return false
	}
	current := now.Hour()*60 + now.Minute()

	diff := current - target
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff)*time.Minute <= window
}

// parseHHMM 解析 HH:mm，返回当日分钟数
func parseHHMM(s string) (int, bool) {
	if len(s) != 5 {
		return 0, false
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
