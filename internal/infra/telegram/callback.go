package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// Callback data travels as "v|<action>|<alertID>|<activityID>". Telegram
// caps callback data at 64 bytes; a uuid alert id plus an int64 activity id
// stays inside that.

func encodeCallback(action domain.AlertAction, alertID string, activityID int64) string {
	return fmt.Sprintf("v|%s|%s|%d", action.String(), alertID, activityID)
}

// decodeCallback parses callback data. A well-formed frame with an
// unrecognized verb decodes to ActionUnknown so the handler can acknowledge
// it as a no-op; malformed data is rejected outright.
func decodeCallback(data string) (domain.AlertAction, string, int64, bool) {
	parts := strings.SplitN(data, "|", 4)
	if len(parts) != 4 || parts[0] != "v" || parts[2] == "" {
		return domain.ActionUnknown, "", 0, false
	}
	activityID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return domain.ActionUnknown, "", 0, false
	}
	return domain.ParseAlertAction(parts[1]), parts[2], activityID, true
}
