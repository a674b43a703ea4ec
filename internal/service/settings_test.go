package service

//
// settings_test.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//
import (
	"testing"

	"github.com/samber/do/v2"

	"gitlab.com/kabes/go-cast/internal/aerr"
	"gitlab.com/kabes/go-cast/internal/assert"
	"gitlab.com/kabes/go-cast/internal/model"
)

func TestSettingsDefaults(t *testing.T) {
	ctx, i := prepareTests(t)
	settSrv := do.MustInvoke[*SettingsSrv](i)

	// empty database yields the defaults
	sett, err := settSrv.GetSettings(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, sett, model.DefaultSettings())
}

func TestSettingsSaveLoad(t *testing.T) {
	ctx, i := prepareTests(t)
	settSrv := do.MustInvoke[*SettingsSrv](i)

	sett := model.DefaultSettings()
	sett.StorageLimitBytes = 1024 * 1024 * 500
	sett.KeepLatestPerPodcast = 3
	sett.ManualDownloadPolicy = model.PolicyAskOnCellular
	sett.AutoDownloadPolicy = model.PolicyAlways
	sett.PlaybackSpeed = 1.5
	sett.SkipForwardSec = 45

	err := settSrv.SaveSettings(ctx, &sett)
	assert.NoErr(t, err)

	rsett, err := settSrv.GetSettings(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, rsett, sett)

	// partial update keeps the other keys
	sett.PlaybackSpeed = 2.0
	err = settSrv.SaveSettings(ctx, &sett)
	assert.NoErr(t, err)

	rsett, err = settSrv.GetSettings(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, rsett.PlaybackSpeed, 2.0)
	assert.Equal(t, rsett.KeepLatestPerPodcast, 3)
}

func TestSettingsValidation(t *testing.T) {
	ctx, i := prepareTests(t)
	settSrv := do.MustInvoke[*SettingsSrv](i)

	bad := model.DefaultSettings()
	bad.PlaybackSpeed = 0
	assert.True(t, aerr.HasTag(settSrv.SaveSettings(ctx, &bad), aerr.ValidationError))

	bad = model.DefaultSettings()
	bad.SkipForwardSec = 0
	assert.True(t, aerr.HasTag(settSrv.SaveSettings(ctx, &bad), aerr.ValidationError))

	bad = model.DefaultSettings()
	bad.StorageLimitBytes = -1
	assert.True(t, aerr.HasTag(settSrv.SaveSettings(ctx, &bad), aerr.ValidationError))

	bad = model.DefaultSettings()
	bad.ManualDownloadPolicy = "sometimes"
	assert.True(t, aerr.HasTag(settSrv.SaveSettings(ctx, &bad), aerr.ValidationError))

	// nothing invalid was persisted
	sett, err := settSrv.GetSettings(ctx)
	assert.NoErr(t, err)
	assert.Equal(t, sett, model.DefaultSettings())
}

func TestSettingsIgnoreCorruptedValues(t *testing.T) {
	ctx, i := prepareTests(t)
	settSrv := do.MustInvoke[*SettingsSrv](i)

	saveRawSetting(ctx, t, i, "playback_speed", "fast")
	saveRawSetting(ctx, t, i, "storage_limit_bytes", "-100")
	saveRawSetting(ctx, t, i, "skip_forward_s", "45")

	sett, err := settSrv.GetSettings(ctx)
	assert.NoErr(t, err)
	// unparsable and invalid values fall back to defaults, valid ones stick
	assert.Equal(t, sett.PlaybackSpeed, 1.0)
	assert.Equal(t, sett.StorageLimitBytes, 0)
	assert.Equal(t, sett.SkipForwardSec, 45)
}
