package ui

// liveTimerScript ticks every element carrying data-live-start. The format
// matches jobdisplay.FormatDuration. Elements replaced by a status row
// refresh are picked up on the next tick.
const liveTimerScript = `(function(){
  function pad(n){ return n<10?'0'+n:''+n; }
  function format(ms){
    if(ms<1000){ return '<1s'; }
    var total=Math.floor(ms/1000);
    var h=Math.floor(total/3600);
    var m=Math.floor((total%3600)/60);
    var s=total%60;
    return h+':'+pad(m)+':'+pad(s);
  }
  function tick(){
    document.querySelectorAll('[data-live-start]').forEach(function(el){
      var start=Date.parse(el.getAttribute('data-live-start'));
      if(isNaN(start)){ return; }
      el.textContent=format(Math.max(0, Date.now()-start));
    });
  }
  tick();
  window.setInterval(tick, 1000);
})();`
