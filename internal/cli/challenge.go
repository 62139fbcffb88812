package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wager-rewards/internal/app"
)

var (
	challengeGameID     string
	challengeGameTitle  string
	challengeMultiplier float64
	challengePrize      float64
	challengeMinBet     float64
	challengeCreator    string
	challengeCreatorID  string
	historyLimit        int
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Manage wager challenges",
}

var challengeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new challenge",
	RunE: func(cmd *cobra.Command, args []string) error {
		if challengeGameID == "" {
			return fmt.Errorf("--game is required")
		}
		if challengeMultiplier <= 0 {
			return fmt.Errorf("--multiplier must be greater than zero")
		}
		if challengePrize <= 0 {
			return fmt.Errorf("--prize must be greater than zero")
		}

		title := challengeGameTitle
		if title == "" {
			title = challengeGameID
		}

		opts := app.ChallengeAddOptions{
			GameID:        challengeGameID,
			GameTitle:     title,
			Multiplier:    challengeMultiplier,
			Prize:         challengePrize,
			MinBet:        challengeMinBet,
			CreatedBy:     challengeCreatorID,
			CreatedByName: challengeCreator,
		}

		return getApp().ChallengeAdd(cmd.Context(), opts)
	},
}

var challengeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active challenges",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ChallengeList(cmd.Context())
	},
}

var challengeCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel an active challenge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid challenge id: %w", err)
		}
		return getApp().ChallengeCancel(cmd.Context(), id)
	},
}

var challengeHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed challenges",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ChallengeHistory(cmd.Context(), app.ChallengeHistoryOptions{Limit: historyLimit})
	},
}

func init() {
	challengeAddCmd.Flags().StringVar(&challengeGameID, "game", "", "Game identifier the challenge targets")
	challengeAddCmd.Flags().StringVar(&challengeGameTitle, "title", "", "Display title for the game")
	challengeAddCmd.Flags().Float64Var(&challengeMultiplier, "multiplier", 0, "Required multiplier to win")
	challengeAddCmd.Flags().Float64Var(&challengePrize, "prize", 0, "Prize amount")
	challengeAddCmd.Flags().Float64Var(&challengeMinBet, "min-bet", 0, "Minimum qualifying bet (0 for none)")
	challengeAddCmd.Flags().StringVar(&challengeCreator, "by", "operator", "Name of the operator creating the challenge")
	challengeAddCmd.Flags().StringVar(&challengeCreatorID, "by-id", "", "Id of the operator creating the challenge")

	challengeHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of results to display")

	challengeCmd.AddCommand(challengeAddCmd)
	challengeCmd.AddCommand(challengeListCmd)
	challengeCmd.AddCommand(challengeCancelCmd)
	challengeCmd.AddCommand(challengeHistoryCmd)
}
