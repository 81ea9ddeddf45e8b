package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
)

// element wraps a located DOM node
type element struct {
	node    *cdp.Node
	locator interfaces.Locator
}

func (e *element) Description() string {
	return e.locator.String()
}

// Session is a chromedp-backed interfaces.Session.
// Lookups are scoped to frame when a nested context was entered.
type Session struct {
	browserCtx  context.Context
	release     func()
	downloadDir string
	logger      arbor.ILogger
	frame       *cdp.Node
	closeOnce   sync.Once
}

var _ interfaces.Session = (*Session)(nil)

func newSession(browserCtx context.Context, release func(), downloadDir string, logger arbor.ILogger) *Session {
	return &Session{
		browserCtx:  browserCtx,
		release:     release,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// run executes actions on the browser, aborting when either the caller or the browser context ends
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.browserCtx.Err() != nil {
		return interfaces.ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && s.browserCtx.Err() != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrSessionClosed, err)
	}
	return err
}

// scope returns the query options for the current context.
// chromedp resolves FromNode of an iframe to its content document, so CSS and XPath
// lookups both run inside the entered frame.
func (s *Session) scope(locator interfaces.Locator) []chromedp.QueryOption {
	opts := []chromedp.QueryOption{chromedp.NodeVisible}
	if locator.Kind == interfaces.LocatorCSS {
		opts = append(opts, chromedp.ByQuery)
	} else {
		opts = append(opts, byXPath(locator.Value))
	}
	if s.frame != nil {
		opts = append(opts, chromedp.FromNode(s.frame))
	}
	return opts
}

// xpathFunction evaluates an XPath expression with the receiver as context node
// and returns the first match or null
func xpathFunction(expr string) string {
	quoted, _ := json.Marshal(expr)
	return `function() {
	const doc = this.nodeType === Node.DOCUMENT_NODE ? this : this.ownerDocument;
	return doc.evaluate(` + string(quoted) + `, this, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
}`
}

// byXPath selects the first node matching expr under the query root.
// Unlike chromedp.BySearch, it honours FromNode.
func byXPath(expr string) chromedp.QueryOption {
	fn := xpathFunction(expr)
	return chromedp.ByFunc(func(ctx context.Context, n *cdp.Node) ([]cdp.NodeID, error) {
		root, err := dom.ResolveNode().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = runtime.ReleaseObject(root.ObjectID).Do(ctx) }()

		res, exp, err := runtime.CallFunctionOn(fn).WithObjectID(root.ObjectID).Do(ctx)
		if err != nil {
			return nil, err
		}
		if exp != nil {
			return nil, exp
		}
		if res == nil || res.ObjectID == "" {
			return []cdp.NodeID{}, nil
		}
		defer func() { _ = runtime.ReleaseObject(res.ObjectID).Do(ctx) }()

		id, err := dom.RequestNode(res.ObjectID).Do(ctx)
		if err != nil {
			return nil, err
		}
		if id == cdp.EmptyNodeID {
			return []cdp.NodeID{}, nil
		}
		return []cdp.NodeID{id}, nil
	})
}

func (s *Session) NavigateTo(ctx context.Context, url string) error {
	s.frame = nil
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) WaitForElement(ctx context.Context, locator interfaces.Locator, timeout time.Duration) (interfaces.Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := s.run(waitCtx, chromedp.Nodes(locator.Value, &nodes, s.scope(locator)...))
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionClosed) {
			return nil, err
		}
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %s", interfaces.ErrElementTimeout, timeout, locator)
		}
		return nil, fmt.Errorf("failed to locate %s: %w", locator, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s matched no nodes", interfaces.ErrElementTimeout, locator)
	}

	return &element{node: nodes[0], locator: locator}, nil
}

func (s *Session) Click(ctx context.Context, el interfaces.Element) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("failed to click %s: %w", e.Description(), err)
	}
	return nil
}

func (s *Session) TypeText(ctx context.Context, el interfaces.Element, text string) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}

	ids := []cdp.NodeID{e.node.NodeID}
	opts := []chromedp.QueryOption{chromedp.ByNodeID}
	if s.frame != nil {
		opts = append(opts, chromedp.FromNode(s.frame))
	}

	if err := s.run(ctx,
		chromedp.Clear(ids, opts...),
		chromedp.SendKeys(ids, text, opts...),
	); err != nil {
		return fmt.Errorf("failed to type into %s: %w", e.Description(), err)
	}
	return nil
}

func (s *Session) EnterNestedContext(ctx context.Context, frame interfaces.Element) error {
	e, err := asElement(frame)
	if err != nil {
		return err
	}
	s.frame = e.node
	s.logger.Debug().Str("frame", e.Description()).Msg("Entered nested context")
	return nil
}

func (s *Session) ExitToTopContext(ctx context.Context) error {
	if s.browserCtx.Err() != nil {
		return interfaces.ErrSessionClosed
	}
	s.frame = nil
	return nil
}

func (s *Session) DownloadDirectory() string {
	return s.downloadDir
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.frame = nil
		s.release()
		s.logger.Debug().Msg("Browser session released")
	})
	return nil
}

func asElement(el interfaces.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e == nil || e.node == nil {
		return nil, fmt.Errorf("element %v was not produced by this session", el)
	}
	return e, nil
}
