package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/config"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/service"
)

// Bot delivers account notifications and answers a few read-only
// commands for users who linked their Telegram account in the panel.
type Bot struct {
	bot     *tele.Bot
	cfg     config.TelegramConfig
	users   *service.UserService
	balance *service.BalanceService
	logger  *zap.Logger
}

func NewBot(cfg config.TelegramConfig, users *service.UserService, balance *service.BalanceService, logger *zap.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:     bot,
		cfg:     cfg,
		users:   users,
		balance: balance,
		logger:  logger.Named("telegram"),
	}

	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/balance", b.handleBalance)
	b.bot.Handle("/help", b.handleHelp)
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

func (b *Bot) GetBotUsername() string {
	return b.bot.Me.Username
}

func (b *Bot) handleStart(c tele.Context) error {
	return c.Send(startText(c.Sender().FirstName, c.Sender().ID), b.panelKeyboard(), tele.ModeHTML)
}

func (b *Bot) handleHelp(c tele.Context) error {
	return c.Send(helpText, tele.ModeHTML)
}

func (b *Bot) handleBalance(c tele.Context) error {
	ctx := context.Background()
	user, err := b.users.GetUserByTelegramID(ctx, c.Sender().ID)
	if errors.Is(err, service.ErrUserNotFound) {
		return c.Send(notLinkedText(c.Sender().ID), tele.ModeHTML)
	}
	if err != nil {
		b.logger.Error("load user", zap.Int64("telegram_id", c.Sender().ID), zap.Error(err))
		return c.Send("Something went wrong. Please try again later.")
	}

	balance, err := b.balance.GetBalance(ctx, user.ID)
	if err != nil {
		b.logger.Error("load balance", zap.Int64("user_id", user.ID), zap.Error(err))
		return c.Send("Something went wrong. Please try again later.")
	}
	return c.Send(balanceText(balance), b.panelKeyboard(), tele.ModeHTML)
}

func (b *Bot) panelKeyboard() *tele.ReplyMarkup {
	keyboard := &tele.ReplyMarkup{}
	if b.cfg.WebAppURL == "" {
		return keyboard
	}
	keyboard.Inline(
		keyboard.Row(
			keyboard.URL("Open billing panel", b.cfg.WebAppURL),
		),
	)
	return keyboard
}

func (b *Bot) send(chatID int64, text string) error {
	_, err := b.bot.Send(&tele.User{ID: chatID}, text, tele.ModeHTML)
	return err
}

// --- Notifications ---

func (b *Bot) SendBalanceTopUp(chatID int64, amount, newBalance decimal.Decimal) error {
	return b.send(chatID, topUpText(amount, newBalance))
}

func (b *Bot) SendReferralBonus(chatID int64, bonus decimal.Decimal) error {
	return b.send(chatID, referralText(bonus))
}

func (b *Bot) SendWithdrawalUpdate(chatID int64, amount decimal.Decimal, status model.WithdrawalStatus) error {
	return b.send(chatID, withdrawalText(amount, status))
}

func (b *Bot) SendSpendingAlert(chatID int64, alert service.SpendingAlert) error {
	return b.send(chatID, spendingAlertText(alert))
}

// --- Message texts ---

const helpText = `<b>Commands</b>

/balance - show your account balance
/start - show your Telegram ID for linking`

func startText(firstName string, telegramID int64) string {
	return fmt.Sprintf(`Hi, %s!

Your Telegram ID is <code>%d</code>. Add it to your billing profile to get payment and spending notifications here.`,
		html.EscapeString(firstName), telegramID)
}

func notLinkedText(telegramID int64) string {
	return fmt.Sprintf("This Telegram account is not linked yet. Add ID <code>%d</code> to your billing profile.", telegramID)
}

func balanceText(balance decimal.Decimal) string {
	return fmt.Sprintf("Your balance: <b>%s</b>", balance.StringFixed(2))
}

func topUpText(amount, newBalance decimal.Decimal) string {
	return fmt.Sprintf(`<b>Balance topped up</b>

Credited: %s
New balance: %s`, amount.StringFixed(2), newBalance.StringFixed(2))
}

func referralText(bonus decimal.Decimal) string {
	return fmt.Sprintf("<b>Referral bonus!</b>\n\nA user you invited made their first purchase. You received %s.", bonus.StringFixed(2))
}

func withdrawalText(amount decimal.Decimal, status model.WithdrawalStatus) string {
	switch status {
	case model.WithdrawalStatusCompleted:
		return fmt.Sprintf("<b>Withdrawal completed</b>\n\n%s has been sent.", amount.StringFixed(2))
	case model.WithdrawalStatusRejected:
		return fmt.Sprintf("<b>Withdrawal rejected</b>\n\nYour request for %s was rejected. Your balance was not changed.", amount.StringFixed(2))
	}
	return fmt.Sprintf("Withdrawal of %s is now %s.", amount.StringFixed(2), status)
}

func spendingAlertText(alert service.SpendingAlert) string {
	return fmt.Sprintf(`<b>Spending alert</b>

You have used %s%% of your %s limit (%s of %s).`,
		alert.Percent.StringFixed(0), alert.Period, alert.Spent.StringFixed(2), alert.Limit.StringFixed(2))
}
