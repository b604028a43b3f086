package pipeline

import (
	"fmt"
	"html"
	"strconv"
	"time"

	"newsletterbot/internal/content"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

func weeklyMessage(st Stats) content.Message {
	runs := strconv.Itoa(st.RunsLastWeek)
	text := "📊 <b>Weekly AI Newsletter Update</b>\n\n" +
		"This week with AI Newsletter Bot SA:\n\n" +
		"📰 <b>Newsletters processed:</b> " + runs + "\n" +
		"👥 <b>Active community:</b> " + strconv.Itoa(st.ActiveRecipients) + " South African professionals\n" +
		"🤖 <b>AI summaries delivered:</b> " + runs + "\n\n" +
		"<b>Coming up:</b>\n" +
		"🔄 Fresh AI insights next week\n" +
		"💡 New features in development\n" +
		"🚀 More South African AI sources being added\n\n" +
		"<b>Feedback welcome!</b> Reply to this message with your thoughts or suggestions.\n\n" +
		"🇿🇦 <i>Proudly serving South African AI professionals</i>\n" +
		"⚡ <i>Powered by AI Newsletter Bot SA</i>"
	return content.Message{Text: text, Origin: content.OriginTemplate}
}

func testMessage(now time.Time) content.Message {
	text := fmt.Sprintf("🧪 <b>Test Message - %s</b>\n\n"+
		"This is an automated test message to verify the scheduler is working.\n\n"+
		"⏰ Time: %s\n"+
		"🤖 Status: All systems operational\n"+
		"📱 Delivery: Successful\n\n"+
		"<i>This is a test message and can be ignored.</i>",
		now.Format("15:04"), now.Format(timestampLayout))
	return content.Message{Text: text, Origin: content.OriginTemplate}
}

func alertText(cause error, now time.Time) string {
	return "🚨 <b>System Alert</b>\n\n" +
		"An error occurred during newsletter processing:\n\n" +
		"<b>Error:</b> " + html.EscapeString(cause.Error()) + "\n" +
		"<b>Time:</b> " + now.Format(timestampLayout) + "\n\n" +
		"Please check the logs for more details."
}
