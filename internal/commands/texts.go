package commands

const helpHead = "🆘 <b>AI Newsletter Bot SA - Help</b>\n\n" +
	"<b>About:</b>\n" +
	"I summarize AI newsletters for South African professionals, focusing on actionable insights for your business and career.\n\n" +
	"<b>What you'll receive:</b>\n" +
	"📰 Daily AI newsletter summaries\n" +
	"🎯 Focus on practical applications\n" +
	"💼 South African business context\n" +
	"⚡ Actionable insights and tools"

const welcomeText = "🤖 <b>Welcome to AI Newsletter Bot SA!</b>\n\n" +
	"I help South African professionals stay updated with the latest AI developments by summarizing newsletters into actionable insights.\n\n" +
	"<b>What I do:</b>\n" +
	"📰 Fetch the latest AI newsletters\n" +
	"🤖 Summarize them using AI with South African business context\n" +
	"📱 Deliver concise, actionable summaries directly to you\n\n" +
	"<b>Commands:</b>\n" +
	"/subscribe - Get AI newsletter summaries\n" +
	"/unsubscribe - Stop receiving summaries\n" +
	"/status - Check your subscription status\n" +
	"/help - Show this help message\n\n" +
	"🚀 <b>Ready to boost your AI knowledge?</b>\n" +
	"Use /subscribe to get started!\n\n" +
	"🇿🇦 <i>Built for South African professionals</i>"

const (
	subscribedNew  = "🎉 <b>Successfully subscribed!</b> You'll receive AI newsletter summaries tailored for South African professionals."
	subscribedBack = "✅ <b>Welcome back!</b> You're now subscribed to AI newsletter summaries."
	subscribedTail = "\n\n📅 <b>What to expect:</b>\n" +
		"• Daily AI newsletter summaries\n" +
		"• Focus on practical, actionable insights\n" +
		"• South African business context\n\n" +
		"🔔 You'll receive your first summary soon!"

	unsubscribedText = "😢 <b>You've been unsubscribed</b> from AI newsletter summaries.\n\n" +
		"💡 You can rejoin anytime with /subscribe\n\n" +
		"🙏 Thanks for using AI Newsletter Bot SA!"

	notSubscribedText = "❌ <b>You're not subscribed</b>\n\n" +
		"💡 Use /subscribe to get AI newsletter summaries\n" +
		"🚀 Join other South African professionals staying ahead with AI!"

	subscribeFailed   = "❌ Sorry, there was an error processing your subscription. Please try again later."
	unsubscribeFailed = "❌ Sorry, there was an error processing your request."
	statusFailed      = "❌ Sorry, could not check your status."
	statsFailed       = "❌ Could not retrieve stats at the moment."
	groupOnlyPrivate  = "💬 Please message me directly to manage your subscription."
)
