// Package tgui holds small helpers for Telegram HTML messages (ParseMode="HTML").
// Values of type H are already escaped; build them with Esc and the tag helpers.
package tgui
