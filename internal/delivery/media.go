package delivery

import (
	"context"
	"fmt"

	"eventbot/internal/storage"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

// unit is one transport call: an album of images or a single item.
type unit struct {
	items []storage.MediaItem
}

func (u unit) album() bool { return len(u.items) > 1 }

// planUnits chunks images into albums of at most size, keeping creation
// order, and appends videos and voice notes one per unit.
func planUnits(items []storage.MediaItem, size int) []unit {
	if size <= 0 || size > kit.MaxAlbumSize {
		size = kit.MaxAlbumSize
	}
	var images, rest []storage.MediaItem
	for _, it := range items {
		if it.Kind == storage.MediaImage {
			images = append(images, it)
		} else {
			rest = append(rest, it)
		}
	}
	var out []unit
	for len(images) > 0 {
		n := min(size, len(images))
		out = append(out, unit{items: images[:n:n]})
		images = images[n:]
	}
	for _, it := range rest {
		out = append(out, unit{items: []storage.MediaItem{it}})
	}
	return out
}

func toMedia(it storage.MediaItem) kit.Media {
	m := kit.Media{FileRef: it.FileRef}
	switch it.Kind {
	case storage.MediaVideo:
		m.Kind = kit.MediaVideo
	case storage.MediaVoice:
		m.Kind = kit.MediaVoice
	default:
		m.Kind = kit.MediaPhoto
	}
	return m
}

func (e *Engine) sendUnit(ctx context.Context, to kit.ChatTarget, u unit) error {
	if !u.album() {
		_, err := e.sender.SendMedia(ctx, to, toMedia(u.items[0]), nil)
		return err
	}
	media := make([]kit.Media, len(u.items))
	for i, it := range u.items {
		media[i] = toMedia(it)
	}
	_, err := e.sender.SendAlbum(ctx, to, media)
	return err
}

// fanOut sends header (if any) and then every unit to every recipient,
// pausing between album chunks and between recipients.
func (e *Engine) fanOut(ctx context.Context, op string, recipients []int64, header string, units []unit, rep *Report) error {
	cfg, _, _, _ := e.snapshot()
	for ri, to := range recipients {
		if ri > 0 {
			if err := e.sleep(ctx, cfg.RecipientPause); err != nil {
				return err
			}
		}
		if header != "" {
			if err := e.sendText(ctx, op, to, rep, header); err != nil {
				return err
			}
		}
		for ui, u := range units {
			if ui > 0 && units[ui-1].album() {
				if err := e.sleep(ctx, cfg.ChunkPause); err != nil {
					return err
				}
			}
			if err := e.send(ctx, op, to, rep, func(ctx context.Context, t kit.ChatTarget) error {
				return e.sendUnit(ctx, t, u)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildAndSendMediaCollection sends every photo and video, ordered by upload
// time. Voice notes are not part of the album. In ModeEveryone every known
// user receives it and the images of the pass are flagged as sent.
func (e *Engine) BuildAndSendMediaCollection(ctx context.Context, mode Mode) (CollectionReport, error) {
	v, err := e.once(ctx, opCollection+":"+mode.String(), func(ctx context.Context) (any, error) {
		return e.buildCollection(ctx, mode)
	})
	rep, _ := v.(CollectionReport)
	return rep, err
}

func (e *Engine) buildCollection(ctx context.Context, mode Mode) (CollectionReport, error) {
	rep := CollectionReport{Mode: mode}
	all, err := e.store.ListMedia(ctx)
	if err != nil {
		return rep, storeErr("list media", err)
	}
	items := albumItems(all)
	rep.Items = len(items)

	recipients := e.operators()
	if mode == ModeEveryone {
		users, err := e.store.ListUserIDs(ctx)
		if err != nil {
			return rep, storeErr("list users", err)
		}
		recipients = dedupe(recipients, users)
	}
	rep.Recipients = len(recipients)

	cfg, msgs, _, _ := e.snapshot()
	units := planUnits(items, cfg.ChunkSize)
	for _, u := range units {
		if u.album() {
			rep.Albums++
		}
	}

	summary := msgs.CollectionEmpty
	if len(items) > 0 {
		summary = fmt.Sprintf(msgs.CollectionReady, len(items))
	}
	if err := e.fanOut(ctx, opCollection, recipients, summary, units, &rep.Report); err != nil {
		return rep, err
	}

	if ids := imageIDs(items); mode == ModeEveryone && len(ids) > 0 {
		n, err := e.store.MarkMediaSent(ctx, ids)
		if err != nil {
			return rep, storeErr("mark media sent", err)
		}
		rep.Marked = n
		markedTotal.WithLabelValues(opCollection).Add(float64(n))
	}
	e.log.Info("media collection sent",
		logx.String("mode", mode.String()),
		logx.Int("items", rep.Items),
		logx.Int("recipients", rep.Recipients),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

// PushNewMedia sends items not yet pushed to every known user. Items are
// flagged only after the whole fan-out; a crash mid-way resends them.
func (e *Engine) PushNewMedia(ctx context.Context) (PushReport, error) {
	v, err := e.once(ctx, opPush, func(ctx context.Context) (any, error) {
		return e.pushNewMedia(ctx)
	})
	rep, _ := v.(PushReport)
	return rep, err
}

func (e *Engine) pushNewMedia(ctx context.Context) (PushReport, error) {
	var rep PushReport
	cfg, msgs, cal, _ := e.snapshot()
	if cal != nil && cal.IsArchive() {
		rep.Skipped = true
		return rep, nil
	}
	items, err := e.store.UnsentMedia(ctx)
	if err != nil {
		return rep, storeErr("unsent media", err)
	}
	rep.Items = len(items)
	if len(items) == 0 {
		return rep, nil
	}
	users, err := e.store.ListUserIDs(ctx)
	if err != nil {
		return rep, storeErr("list users", err)
	}
	recipients := dedupe(users)
	rep.Recipients = len(recipients)

	units := planUnits(items, cfg.ChunkSize)
	if err := e.fanOut(ctx, opPush, recipients, fmt.Sprintf(msgs.NewMedia, len(items)), units, &rep.Report); err != nil {
		return rep, err
	}
	n, err := e.store.MarkMediaSent(ctx, mediaIDs(items))
	if err != nil {
		return rep, storeErr("mark media sent", err)
	}
	rep.Marked = n
	markedTotal.WithLabelValues(opPush).Add(float64(n))
	e.log.Info("new media pushed",
		logx.Int("items", rep.Items),
		logx.Int("recipients", rep.Recipients),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

func mediaIDs(items []storage.MediaItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// albumItems keeps the kinds that belong in the collection: photos and videos.
func albumItems(items []storage.MediaItem) []storage.MediaItem {
	out := make([]storage.MediaItem, 0, len(items))
	for _, it := range items {
		if it.Kind == storage.MediaImage || it.Kind == storage.MediaVideo {
			out = append(out, it)
		}
	}
	return out
}

func imageIDs(items []storage.MediaItem) []int64 {
	var ids []int64
	for _, it := range items {
		if it.Kind == storage.MediaImage {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
