// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kodi

import (
	"context"
)

// Channel is a PVR channel as reported by the device.
type Channel struct {
	ID    int    `json:"channelid"`
	Label string `json:"label"`
}

// Item is what the active player is showing. ID is 0 when the device does
// not report one.
type Item struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ChannelGroups lists the TV channel group ids.
func (c *Client) ChannelGroups(ctx context.Context) ([]int, error) {
	var out struct {
		Groups []struct {
			ID int `json:"channelgroupid"`
		} `json:"channelgroups"`
	}
	if err := c.call(ctx, "PVR.GetChannelGroups", map[string]any{"channeltype": "tv"}, &out); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(out.Groups))
	for _, g := range out.Groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// Channels lists the channels of one group.
func (c *Client) Channels(ctx context.Context, groupID int) ([]Channel, error) {
	var out struct {
		Channels []Channel `json:"channels"`
	}
	if err := c.call(ctx, "PVR.GetChannels", map[string]any{"channelgroupid": groupID}, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// OpenChannel tunes the player to a live channel.
func (c *Client) OpenChannel(ctx context.Context, channelID int) error {
	params := map[string]any{"item": map[string]any{"channelid": channelID}}
	return c.call(ctx, "Player.Open", params, nil)
}

// CurrentItem returns the item playing on the video player.
func (c *Client) CurrentItem(ctx context.Context) (Item, error) {
	var out struct {
		Item Item `json:"item"`
	}
	params := map[string]any{"properties": []string{}, "playerid": 1}
	if err := c.call(ctx, "Player.GetItem", params, &out); err != nil {
		return Item{}, err
	}
	return out.Item, nil
}

// Volume returns the current volume (0-100).
func (c *Client) Volume(ctx context.Context) (int, error) {
	var out struct {
		Volume int `json:"volume"`
	}
	params := map[string]any{"properties": []string{"volume"}}
	if err := c.call(ctx, "Application.GetProperties", params, &out); err != nil {
		return 0, err
	}
	return out.Volume, nil
}

// SetVolume sets the volume and returns the value the device applied.
func (c *Client) SetVolume(ctx context.Context, volume int) (int, error) {
	var applied int
	if err := c.call(ctx, "Application.SetVolume", map[string]any{"volume": volume}, &applied); err != nil {
		return 0, err
	}
	return applied, nil
}

// ToggleMute flips the mute state and returns the new state.
func (c *Client) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	if err := c.call(ctx, "Application.SetMute", map[string]any{"mute": "toggle"}, &muted); err != nil {
		return false, err
	}
	return muted, nil
}

// Shutdown powers the device off.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, "System.Shutdown", nil, nil)
}

// Ping checks that the JSON-RPC endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.call(ctx, "JSONRPC.Ping", nil, &pong); err != nil {
		return err
	}
	if pong != "pong" {
		return &RPCError{Sentinel: ErrBadResponse, Method: "JSONRPC.Ping", Message: pong}
	}
	return nil
}
