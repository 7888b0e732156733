package model

import (
	"fmt"
	"strconv"
)

// Document paths. These mirror the layout of the production data and must
// not change.

func PublicStatsCollection(appID string) string {
	return fmt.Sprintf("artifacts/%s/public_user_stats", appID)
}

func PublicStatsPath(appID, userID string) string {
	return PublicStatsCollection(appID) + "/" + userID
}

func ProfilePath(appID, userID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/profile/data", appID, userID)
}

func FriendRequestsCollection(appID string) string {
	return fmt.Sprintf("artifacts/%s/friend_requests", appID)
}

func FriendRequestPath(appID, requestID string) string {
	return FriendRequestsCollection(appID) + "/" + requestID
}

func InteractionsCollection(appID string) string {
	return fmt.Sprintf("artifacts/%s/feed_interactions", appID)
}

func InteractionPath(appID, interactionID string) string {
	return InteractionsCollection(appID) + "/" + interactionID
}

func NotificationsCollection(appID, userID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/notifications", appID, userID)
}

func NotificationPath(appID, userID, notificationID string) string {
	return NotificationsCollection(appID, userID) + "/" + notificationID
}

func PartyPath(appID, userID, partyID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/parties/%s", appID, userID, partyID)
}

func FriendshipsCollection(appID string) string {
	return fmt.Sprintf("artifacts/%s/friendships", appID)
}

func FriendshipPath(appID, userA, userB string) string {
	return FriendshipsCollection(appID) + "/" + PairKey(userA, userB)
}

// PairKey identifies the unordered pair {a, b}.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return joinID(a, b)
}

// ReactionID is the id of the single reaction a user may hold on an item.
func ReactionID(itemID, userID string) string {
	return joinID(itemID, userID)
}

// joinID prefixes the length of a so that ids may contain the separator
// without two different pairs sharing a key.
func joinID(a, b string) string {
	return strconv.Itoa(len(a)) + "_" + a + "_" + b
}
