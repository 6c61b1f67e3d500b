package redis

import "fmt"

const ns = "railgo:v1"

func KeyJourneySummary(journeyID int64) string {
	return fmt.Sprintf("%s:journey:%d:summary", ns, journeyID)
}

func KeyJourneyAvailability(journeyID int64) string {
	return fmt.Sprintf("%s:journey:%d:availability", ns, journeyID)
}

func KeyJourneySeatMap(journeyID int64) string {
	return fmt.Sprintf("%s:journey:%d:seatmap", ns, journeyID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelJourneysChanged() string {
	return ns + ":journeys:changed"
}
