package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"starling/internal/model"
)

// openStatus navigates to a tweet's permalink and lets the page settle.
func (d *Driver) openStatus(ctx context.Context, p *rod.Page, item model.CandidateItem) error {
	url := item.URL
	if url == "" {
		url = fmt.Sprintf("%s/%s/status/%s", baseURL, item.AuthorHandle, item.ID)
	}
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate status: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	d.sleepRange(ctx, 1200, 2600)
	return nil
}

// clickSel waits for the selector, then clicks it.
func clickSel(p *rod.Page, sel string) error {
	el, err := p.Element(sel)
	if err != nil {
		return fmt.Errorf("find %s: %w", sel, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %s: %w", sel, err)
	}
	if err := el.Click("left", 1); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

// composeInto focuses the compose box and types text at human pace.
func (d *Driver) composeInto(ctx context.Context, p *rod.Page, sel, text string) error {
	box, err := p.Element(sel)
	if err != nil {
		return fmt.Errorf("compose box: %w", err)
	}
	if err := box.Click("left", 1); err != nil {
		return fmt.Errorf("focus compose box: %w", err)
	}
	d.sleepRange(ctx, 300, 800)
	return d.typeHuman(ctx, box, text)
}

// Reply opens the tweet and posts text under it.
func (d *Driver) Reply(ctx context.Context, item model.CandidateItem, text string) error {
	p := d.p(ctx)
	if err := d.openStatus(ctx, p, item); err != nil {
		return err
	}
	if err := clickSel(p, selReplyButton); err != nil {
		return err
	}
	if err := d.composeInto(ctx, p, selComposeBox, text); err != nil {
		return err
	}
	d.sleepRange(ctx, 400, 1000)
	if err := clickSel(p, selComposeSend); err != nil {
		return err
	}
	d.sleepRange(ctx, 1200, 2500)
	return nil
}

// Like hearts the tweet. An already-liked tweet is left alone.
func (d *Driver) Like(ctx context.Context, item model.CandidateItem) error {
	p := d.p(ctx)
	if err := d.openStatus(ctx, p, item); err != nil {
		return err
	}
	article, err := p.Element(selTweet)
	if err != nil {
		return fmt.Errorf("tweet article: %w", err)
	}
	if ok, _, _ := article.Has(selUnlike); ok {
		return nil
	}
	btn, err := article.Element(selLikeButton)
	if err != nil {
		return fmt.Errorf("like button: %w", err)
	}
	if err := btn.Click("left", 1); err != nil {
		return fmt.Errorf("click like: %w", err)
	}
	d.sleepRange(ctx, 600, 1500)
	return nil
}

// Retweet reposts the tweet through the confirm menu. An existing
// repost is left alone.
func (d *Driver) Retweet(ctx context.Context, item model.CandidateItem) error {
	p := d.p(ctx)
	if err := d.openStatus(ctx, p, item); err != nil {
		return err
	}
	article, err := p.Element(selTweet)
	if err != nil {
		return fmt.Errorf("tweet article: %w", err)
	}
	if ok, _, _ := article.Has(selUnretweet); ok {
		return nil
	}
	btn, err := article.Element(selRetweet)
	if err != nil {
		return fmt.Errorf("retweet button: %w", err)
	}
	if err := btn.Click("left", 1); err != nil {
		return fmt.Errorf("click retweet: %w", err)
	}
	d.sleepRange(ctx, 300, 800)
	// confirm option renders in a page-level menu
	if err := clickSel(p, selRetweetYes); err != nil {
		return err
	}
	d.sleepRange(ctx, 600, 1500)
	return nil
}

// Quote opens the repost menu, picks Quote and posts commentary.
func (d *Driver) Quote(ctx context.Context, item model.CandidateItem, text string) error {
	p := d.p(ctx)
	if err := d.openStatus(ctx, p, item); err != nil {
		return err
	}
	article, err := p.Element(selTweet)
	if err != nil {
		return fmt.Errorf("tweet article: %w", err)
	}
	btn, err := article.Element(selRetweet)
	if err != nil {
		return fmt.Errorf("retweet button: %w", err)
	}
	if err := btn.Click("left", 1); err != nil {
		return fmt.Errorf("click retweet: %w", err)
	}
	d.sleepRange(ctx, 300, 800)
	quote, err := p.ElementR("a, span", "Quote")
	if err != nil {
		return fmt.Errorf("quote option: %w", err)
	}
	if err := quote.Click("left", 1); err != nil {
		return fmt.Errorf("click quote: %w", err)
	}
	if err := d.composeInto(ctx, p, selComposeBox, text); err != nil {
		return err
	}
	d.sleepRange(ctx, 400, 1000)
	if err := clickSel(p, selComposeSend); err != nil {
		return err
	}
	d.sleepRange(ctx, 1200, 2500)
	return nil
}

// Post publishes a standalone tweet from the compose page.
func (d *Driver) Post(ctx context.Context, text string) error {
	p := d.p(ctx)
	if err := p.Navigate(composeURL); err != nil {
		return fmt.Errorf("navigate compose: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load compose: %w", err)
	}
	d.sleepRange(ctx, 1000, 2200)
	if err := d.composeInto(ctx, p, selComposeBox, text); err != nil {
		return err
	}
	d.sleepRange(ctx, 400, 1000)
	if err := clickSel(p, selComposeSend); err != nil {
		return err
	}
	d.sleepRange(ctx, 1200, 2500)
	return nil
}

// Thread publishes parts as one thread, adding a composer box per part.
func (d *Driver) Thread(ctx context.Context, parts []string) error {
	if len(parts) == 0 {
		return fmt.Errorf("empty thread")
	}
	p := d.p(ctx)
	if err := p.Navigate(composeURL); err != nil {
		return fmt.Errorf("navigate compose: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load compose: %w", err)
	}
	d.sleepRange(ctx, 1000, 2200)
	for i, part := range parts {
		sel := fmt.Sprintf(`[data-testid="tweetTextarea_%d"]`, i)
		if err := d.composeInto(ctx, p, sel, part); err != nil {
			return fmt.Errorf("thread part %d: %w", i+1, err)
		}
		if i < len(parts)-1 {
			d.sleepRange(ctx, 300, 800)
			if err := clickSel(p, selAddToThread); err != nil {
				return err
			}
		}
	}
	d.sleepRange(ctx, 400, 1000)
	if err := clickSel(p, selComposeSend); err != nil {
		return err
	}
	d.sleepRange(ctx, 1500, 3000)
	return nil
}
